package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobybot/pkg/config"
	"jobybot/pkg/records"
	"jobybot/pkg/state"
)

func TestPhraseTriggerMatch(t *testing.T) {
	tr := NewPhraseTrigger(state.FlowRegistration, records.RoleSeeker, "/register", "Зарегистрироваться")

	assert.True(t, tr.Match("/register"))
	assert.True(t, tr.Match("/REGISTER@joby_bot now"))
	assert.True(t, tr.Match("хочу ЗАРЕГИСТРИРОВАТЬСЯ!"))
	assert.False(t, tr.Match("/registerme"))
	assert.False(t, tr.Match("register"))
	assert.False(t, tr.Match("   "))
}

func TestTriggerTableOrder(t *testing.T) {
	cfg, err := config.DefaultFlowConfig()
	require.NoError(t, err)
	table := TriggersFromConfig(cfg.Triggers)

	tr, ok := MatchTrigger(table, "Хочу разместить подработку")
	require.True(t, ok)
	assert.Equal(t, state.FlowRegistration, tr.Flow())
	assert.Equal(t, records.RolePoster, tr.Role())

	tr, ok = MatchTrigger(table, "Разместить подработку")
	require.True(t, ok)
	assert.Equal(t, state.FlowJobPosting, tr.Flow())
	assert.Equal(t, records.RolePoster, tr.Role())

	_, ok = MatchTrigger(table, "мои публикации")
	assert.False(t, ok)
}

func TestFlowTables(t *testing.T) {
	m, err := newFlowFSM(state.FlowRegistration, StateAwaitingPhoneChoice, nil)
	require.NoError(t, err)
	assert.True(t, m.Can(EventCommit))
	assert.True(t, m.Can(EventManualPhone))
	assert.False(t, m.Can(EventAnswer))

	m, err = newFlowFSM(state.FlowJobPosting, StateAwaitingDescription, nil)
	require.NoError(t, err)
	assert.False(t, m.Can(EventCommit))
	assert.True(t, m.Can(EventAnswer))

	_, err = newFlowFSM(state.FlowJobPosting, StateAwaitingName, nil)
	assert.Error(t, err)
	_, err = newFlowFSM("billing", StateIdle, nil)
	assert.Error(t, err)
}
