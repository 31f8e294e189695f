package logging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jobybot/pkg/store"
	"jobybot/pkg/store/memstore"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(Options{Level: "DEBUG"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(Options{Development: true})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestStoreCoreWritesWarnAndAbove(t *testing.T) {
	db := memstore.New()
	core := NewStoreCore(db, zapcore.WarnLevel)
	logger := WithStore(zap.NewNop(), core).With(zap.String("component", "test"))

	logger.Info("not stored")
	logger.Warn("store slow", zap.Int("attempt", 2))
	logger.Error("store down", zap.Error(errors.New("boom")))
	core.Close()

	rows := db.Rows(store.TableLogs)
	require.Len(t, rows, 2)
	assert.Equal(t, "WARN", rows[0]["type"])
	assert.Equal(t, "store slow", rows[0]["message"])
	assert.Equal(t, "ERROR", rows[1]["type"])

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rows[0]["details"].(string)), &details))
	assert.Equal(t, "test", details["component"])
	assert.EqualValues(t, 2, details["attempt"])
}

func TestStoreCoreIgnoresWriteFailures(t *testing.T) {
	db := memstore.New()
	db.Fail("insert", store.Permanent, 1)
	core := NewStoreCore(db, nil)
	logger := WithStore(zap.NewNop(), core)

	logger.Warn("lost")
	logger.Warn("kept")
	core.Close()
	core.Close()

	rows := db.Rows(store.TableLogs)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0]["message"])

	assert.NotPanics(t, func() { logger.Warn("after close") })
}

func TestWithStoreNilCore(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithStore(base, nil))
}

func TestRecorder(t *testing.T) {
	db := memstore.New()
	rec := NewRecorder(db, nil)

	rec.Record(context.Background(), "menu_find_jobs", 42, map[string]interface{}{"city": "Минск"})
	db.Fail("insert", store.Transient, 1)
	rec.Record(context.Background(), "menu_profile", 42, nil)

	rows := db.Rows(store.TableLogs)
	require.Len(t, rows, 1)
	assert.Equal(t, ActionType, rows[0]["type"])
	assert.Equal(t, "menu_find_jobs", rows[0]["message"])
	assert.Contains(t, rows[0]["details"], `"city":"Минск"`)
	assert.Contains(t, rows[0]["details"], `"user_id":42`)

	var nilRec *Recorder
	assert.NotPanics(t, func() { nilRec.Record(context.Background(), "x", 1, nil) })
}
