package logging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobybot/pkg/store"
)

// ActionType marks user actions in the logs table.
const ActionType = "ACTION"

// Recorder writes user actions (menu clicks, commits) into the logs table.
// Failures are logged at debug level and otherwise ignored.
type Recorder struct {
	db     store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(db store.Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, logger: logger, now: time.Now}
}

// Record stores one action. It never fails the caller.
func (r *Recorder) Record(ctx context.Context, action string, userID int64, details map[string]interface{}) {
	if r == nil || r.db == nil {
		return
	}
	payload := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		payload[k] = v
	}
	payload["user_id"] = userID

	if err := r.db.Insert(ctx, store.TableLogs, entryRow(r.now(), ActionType, action, payload)); err != nil {
		r.logger.Debug("Failed to record action", zap.String("action", action), zap.Error(err))
	}
}
