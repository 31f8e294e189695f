package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobybot/pkg/config"
	"jobybot/pkg/records"
	"jobybot/pkg/retry"
	"jobybot/pkg/state"
	"jobybot/pkg/store"
	"jobybot/pkg/store/memstore"
)

const (
	testChat = int64(100)
	testUser = int64(42)
)

type harness struct {
	t       *testing.T
	stepper *Stepper
	db      *memstore.MemStore
	repo    *records.Repository
	cfg     *config.FlowConfig
	session *state.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.DefaultFlowConfig()
	require.NoError(t, err)

	db := memstore.New()
	repo := records.NewRepository(db, retry.Executor{MaxAttempts: 3, Logger: zap.NewNop()}, zap.NewNop())
	stepper, err := NewStepper(cfg, repo, zap.NewNop())
	require.NoError(t, err)

	return &harness{t: t, stepper: stepper, db: db, repo: repo, cfg: cfg}
}

// send feeds text through the stepper and keeps the returned session, like the dispatcher does.
func (h *harness) send(text string) Reply {
	h.t.Helper()
	r := h.stepper.Handle(context.Background(), h.session, Input{ChatID: testChat, UserID: testUser, UserName: "tester", Text: text})
	h.session = r.Session
	return r
}

func (h *harness) sendContact(phone string) Reply {
	h.t.Helper()
	in := Input{ChatID: testChat, UserID: testUser, Contact: &Contact{PhoneNumber: phone, UserID: testUser}}
	r := h.stepper.Handle(context.Background(), h.session, in)
	h.session = r.Session
	return r
}

func (h *harness) state() string {
	if h.session == nil {
		return StateIdle
	}
	return h.session.State
}

func (h *harness) register(role string, answers ...string) Reply {
	h.t.Helper()
	trigger := "Хочу найти подработку"
	if role == "poster" {
		trigger = "➕ Хочу разместить подработку"
	}
	r := h.send(trigger)
	require.Equal(h.t, StateAwaitingName, h.state())
	for _, a := range answers {
		r = h.send(a)
	}
	return r
}

func TestUnrecognizedIdleInput(t *testing.T) {
	h := newHarness(t)

	r := h.send("привет")
	assert.Nil(t, r.Session)
	assert.True(t, r.Unrecognized)
	assert.NoError(t, r.Err)
	assert.Equal(t, MenuMain, r.Menu)
	assert.Equal(t, h.cfg.Messages.Unrecognized, r.Text)
}

func TestTriggersStartFlows(t *testing.T) {
	testCases := []struct {
		text  string
		flow  state.Flow
		role  string
		first string
	}{
		{text: "/register", flow: state.FlowRegistration, role: "seeker", first: StateAwaitingName},
		{text: "Зарегистрироваться", flow: state.FlowRegistration, role: "seeker", first: StateAwaitingName},
		{text: "🔍 Хочу найти подработку", flow: state.FlowRegistration, role: "seeker", first: StateAwaitingName},
		{text: "➕ Хочу разместить подработку", flow: state.FlowRegistration, role: "poster", first: StateAwaitingName},
		{text: "➕ Разместить подработку", flow: state.FlowJobPosting, role: "poster", first: StateAwaitingTitle},
		{text: "/post@JobyBot", flow: state.FlowJobPosting, role: "poster", first: StateAwaitingTitle},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			h := newHarness(t)
			r := h.send(tc.text)
			require.NotNil(t, r.Session)
			assert.Equal(t, tc.flow, r.Session.Flow)
			assert.Equal(t, tc.role, r.Session.Role)
			assert.Equal(t, tc.first, r.Session.State)
			step, _ := h.cfg.Step(string(tc.flow), tc.first)
			assert.Equal(t, step.Prompt, r.Text)
		})
	}
}

func TestMenuFindJobsIsNotATrigger(t *testing.T) {
	h := newHarness(t)
	r := h.send("📢 Найти подработку")
	assert.True(t, r.Unrecognized)
}

func TestTextStatesStoreTrimmedValue(t *testing.T) {
	h := newHarness(t)
	h.send("/register")

	r := h.send("   Иван Петров \n")
	require.NotNil(t, r.Session)
	assert.Equal(t, StateAwaitingCity, r.Session.State)
	assert.Equal(t, "Иван Петров", r.Session.Fields[FieldName])

	r = h.send("\tМинск ")
	assert.Equal(t, StateAwaitingPhoneChoice, r.Session.State)
	assert.Equal(t, "Минск", r.Session.Fields[FieldCity])
	assert.Equal(t, MenuPhoneChoice, r.Menu)
}

func TestEmptyTextRepromptsWithoutChange(t *testing.T) {
	h := newHarness(t)
	h.send("/post")

	before := h.session.Clone()
	r := h.send("   ")
	require.NotNil(t, r.Session)
	assert.Equal(t, before.State, r.Session.State)
	assert.Equal(t, before.Fields, r.Session.Fields)

	step, _ := h.cfg.Step(string(state.FlowJobPosting), StateAwaitingTitle)
	assert.Contains(t, r.Text, step.Invalid)
	assert.Contains(t, r.Text, step.Prompt)
}

func TestPriceWithNonDigitIsRejected(t *testing.T) {
	for _, price := range []string{"1500р", "15 00", "-1", "1,5", "тысяча", ""} {
		t.Run(price, func(t *testing.T) {
			h := newHarness(t)
			h.send("/post")
			h.send("Помощь на складе")
			h.send("Разгрузка фуры")
			require.Equal(t, StateAwaitingPrice, h.state())

			r := h.send(price)
			require.NotNil(t, r.Session)
			assert.Equal(t, StateAwaitingPrice, r.Session.State)
			_, stored := r.Session.Fields[FieldPrice]
			assert.False(t, stored)
			assert.False(t, r.Committed)
			assert.Empty(t, h.db.Rows(store.TableJobs))
		})
	}
}

func TestJobPostingEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.register("seeker", "Пётр", "Минск", "+375 44 123-45-67")
	require.Nil(t, h.session)

	h.send("Разместить подработку")
	h.send("Помощь на складе")
	h.send("Разгрузка фуры")
	r := h.send("1500")

	require.NoError(t, r.Err)
	assert.True(t, r.Committed)
	assert.Nil(t, r.Session)
	assert.Equal(t, MenuMain, r.Menu)
	assert.Contains(t, r.Text, "Помощь на складе")
	assert.Contains(t, r.Text, "1500")

	jobs := h.db.Rows(store.TableJobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Помощь на складе", jobs[0]["title"])
	assert.Equal(t, "Разгрузка фуры", jobs[0]["description"])
	assert.Equal(t, int64(1500), jobs[0]["price"])
	assert.Equal(t, "Минск", jobs[0]["city"])
	assert.Equal(t, "+375441234567", jobs[0]["contact"])

	users := h.db.Rows(store.TableUsers)
	require.Len(t, users, 1)
	assert.Equal(t, "seeker,poster", users[0]["roles"])
}

func TestJobPostingWithoutProfileUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.send("/post")
	h.send("Курьер")
	h.send("Доставка документов")
	r := h.send("800")

	require.True(t, r.Committed)
	jobs := h.db.Rows(store.TableJobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, records.Placeholder, jobs[0]["city"])
	assert.Empty(t, h.db.Rows(store.TableUsers))
}

func TestRepeatedFinalAnswerIsIdleInput(t *testing.T) {
	h := newHarness(t)
	h.send("/post")
	h.send("Курьер")
	h.send("Доставка")
	first := h.send("800")
	require.True(t, first.Committed)

	second := h.send("800")
	assert.False(t, second.Committed)
	assert.True(t, second.Unrecognized)
	assert.Nil(t, second.Session)
	assert.Len(t, h.db.Rows(store.TableJobs), 1)
}

func TestRegistrationWithTypedPhone(t *testing.T) {
	h := newHarness(t)
	r := h.register("seeker", "Иван", "Минск", "+375 29 123-45-67")

	require.NoError(t, r.Err)
	assert.True(t, r.Committed)
	assert.Nil(t, r.Session)
	assert.Contains(t, r.Text, "Иван")

	users := h.db.Rows(store.TableUsers)
	require.Len(t, users, 1)
	assert.Equal(t, testUser, users[0]["telegram_id"])
	assert.Equal(t, "+375291234567", users[0]["phone"])
	assert.Equal(t, "seeker", users[0]["roles"])
	assert.Equal(t, "tester", users[0]["username"])
}

func TestRegistrationWithSharedContact(t *testing.T) {
	h := newHarness(t)
	h.register("seeker", "Иван", "Москва")

	r := h.sendContact("79001234567")
	require.True(t, r.Committed)
	assert.Equal(t, "+79001234567", h.db.Rows(store.TableUsers)[0]["phone"])
}

func TestRegistrationManualPhoneBranch(t *testing.T) {
	h := newHarness(t)
	h.register("seeker", "Иван", "Минск")

	r := h.send(h.cfg.Menu.TypeManually)
	require.NotNil(t, r.Session)
	assert.Equal(t, StateAwaitingPhone, r.Session.State)
	assert.Equal(t, MenuCancel, r.Menu)

	r = h.send("123")
	assert.Equal(t, StateAwaitingPhone, r.Session.State)
	assert.False(t, r.Committed)

	r = h.send("8 (900) 123-45-67")
	assert.True(t, r.Committed)
	assert.Equal(t, "+79001234567", h.db.Rows(store.TableUsers)[0]["phone"])
}

func TestContactRejectedOutsidePhoneStates(t *testing.T) {
	h := newHarness(t)
	h.send("/register")

	r := h.sendContact("+375291234567")
	require.NotNil(t, r.Session)
	assert.Equal(t, StateAwaitingName, r.Session.State)
	assert.Contains(t, r.Text, h.cfg.Messages.ContactUnexpected)
	assert.Empty(t, r.Session.Fields)
}

func TestTriggerDuringSessionIsConsumedAsAnswer(t *testing.T) {
	h := newHarness(t)
	h.send("/register")

	r := h.send("/post")
	require.NotNil(t, r.Session)
	assert.Equal(t, state.FlowRegistration, r.Session.Flow)
	assert.Equal(t, StateAwaitingCity, r.Session.State)
	assert.Equal(t, "/post", r.Session.Fields[FieldName])
}

func TestRoleMergeSeekerThenPoster(t *testing.T) {
	h := newHarness(t)
	h.register("seeker", "Иван", "Минск", "+375291234567")
	r := h.register("poster", "Иван", "Минск", "+375291234567")
	require.True(t, r.Committed)

	users := h.db.Rows(store.TableUsers)
	require.Len(t, users, 1)
	assert.Equal(t, "seeker,poster", users[0]["roles"])

	u, err := h.repo.FindUser(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, u.Roles.Has(records.RoleSeeker))
	assert.True(t, u.Roles.Has(records.RolePoster))
}

func TestCommitRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.send("/post")
	h.send("Курьер")
	h.send("Доставка")

	h.db.Fail("insert", store.Transient, 2)
	r := h.send("500")

	require.NoError(t, r.Err)
	assert.True(t, r.Committed)
	assert.Equal(t, 3, h.db.Calls("insert"))
	assert.Len(t, h.db.Rows(store.TableJobs), 1)
}

func TestCommitExhaustionKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.send("/post")
	h.send("Курьер")
	h.send("Доставка")
	before := h.session.Clone()

	h.db.Fail("insert", store.Transient, 3)
	r := h.send("500")

	require.Error(t, r.Err)
	assert.True(t, store.IsTransient(r.Err))
	assert.False(t, r.Committed)
	assert.Equal(t, h.cfg.Messages.CommitFailed, r.Text)
	require.NotNil(t, r.Session)
	assert.Equal(t, before.State, r.Session.State)
	assert.Equal(t, before.Fields, r.Session.Fields)
	assert.Equal(t, 3, h.db.Calls("insert"))
	assert.Empty(t, h.db.Rows(store.TableJobs))

	again := h.send("500")
	require.NoError(t, again.Err)
	assert.True(t, again.Committed)
	assert.Equal(t, 4, h.db.Calls("insert"))
	assert.Len(t, h.db.Rows(store.TableJobs), 1)
}

func TestCommitPermanentFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.register("seeker", "Иван", "Минск")

	h.db.Fail("insert", store.Permanent, 1)
	r := h.send("+375291234567")

	require.Error(t, r.Err)
	assert.False(t, store.IsTransient(r.Err))
	assert.Equal(t, 1, h.db.Calls("insert"))
	require.NotNil(t, r.Session)
	assert.Equal(t, StateAwaitingPhoneChoice, r.Session.State)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.send("/register")
	h.send("Иван")

	r := h.send(h.cfg.Menu.Cancel)
	assert.Nil(t, r.Session)
	assert.Equal(t, h.cfg.Messages.Cancelled, r.Text)
	assert.Equal(t, MenuMain, r.Menu)
	assert.Empty(t, h.db.Rows(store.TableUsers))

	r = h.stepper.Cancel(context.Background(), nil)
	assert.Equal(t, h.cfg.Messages.NothingToCancel, r.Text)
}

func TestCorruptSessionState(t *testing.T) {
	h := newHarness(t)
	sess := state.NewSession(testChat, testUser, "", state.FlowJobPosting)
	sess.State = StateAwaitingCity

	r := h.stepper.Handle(context.Background(), sess, Input{ChatID: testChat, UserID: testUser, Text: "x"})
	assert.Error(t, r.Err)
	assert.Nil(t, r.Session)
	assert.Equal(t, h.cfg.Messages.InternalError, r.Text)
}

type failingRecords struct{ err error }

func (f failingRecords) SaveRegistration(context.Context, records.User, records.Role) (*records.User, error) {
	return nil, f.err
}
func (f failingRecords) AddRole(context.Context, int64, records.Role) error { return f.err }
func (f failingRecords) CreateListing(context.Context, int64, string, string, int64) (*records.Job, error) {
	return nil, f.err
}

func TestCommitErrorIsCanceledTransition(t *testing.T) {
	cfg, err := config.DefaultFlowConfig()
	require.NoError(t, err)
	boom := errors.New("boom")
	stepper, err := NewStepper(cfg, failingRecords{err: boom}, nil)
	require.NoError(t, err)

	sess := state.NewSession(testChat, testUser, "", state.FlowJobPosting)
	sess.State = StateAwaitingPrice
	sess.Fields[FieldTitle] = "t"
	sess.Fields[FieldDescription] = "d"

	r := stepper.Handle(context.Background(), sess, Input{ChatID: testChat, UserID: testUser, Text: "10"})
	assert.ErrorIs(t, r.Err, boom)
	assert.True(t, isCanceledError(r.Err))
	assert.Same(t, sess, r.Session)
}

func TestNewStepperRequiresEveryState(t *testing.T) {
	cfg, err := config.DefaultFlowConfig()
	require.NoError(t, err)
	f := cfg.Flows[config.FlowRegistration]
	f.Steps = f.Steps[:3]
	cfg.Flows[config.FlowRegistration] = f

	_, err = NewStepper(cfg, failingRecords{}, nil)
	assert.Error(t, err)
}
