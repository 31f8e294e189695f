package logging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"jobybot/pkg/store"
)

const (
	storeQueueSize    = 256
	storeWriteTimeout = 5 * time.Second
)

// StoreCore is a zapcore.Core that writes entries at or above its level into
// the logs table. Writes happen on a background goroutine; entries are dropped
// when the queue is full and write failures are ignored.
type StoreCore struct {
	zapcore.LevelEnabler
	sink   *storeSink
	fields []zapcore.Field
}

type storeSink struct {
	db      store.Store
	entries chan store.Row
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ zapcore.Core = (*StoreCore)(nil)

// NewStoreCore starts the writer goroutine. Close stops it after the queue drains.
func NewStoreCore(db store.Store, level zapcore.LevelEnabler) *StoreCore {
	if level == nil {
		level = zapcore.WarnLevel
	}
	sink := &storeSink{
		db:      db,
		entries: make(chan store.Row, storeQueueSize),
		done:    make(chan struct{}),
	}
	go sink.run()
	return &StoreCore{LevelEnabler: level, sink: sink}
}

func (c *StoreCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &StoreCore{LevelEnabler: c.LevelEnabler, sink: c.sink, fields: merged}
}

func (c *StoreCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *StoreCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if ent.LoggerName != "" {
		enc.Fields["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		enc.Fields["caller"] = ent.Caller.TrimmedPath()
	}

	c.sink.enqueue(entryRow(ent.Time, ent.Level.CapitalString(), ent.Message, enc.Fields))
	return nil
}

func (c *StoreCore) Sync() error {
	return nil
}

// Close flushes queued entries and stops the writer.
func (c *StoreCore) Close() {
	s := c.sink
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *storeSink) enqueue(row store.Row) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.entries <- row:
	default:
	}
}

func (s *storeSink) run() {
	defer close(s.done)
	for row := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		_ = s.db.Insert(ctx, store.TableLogs, row)
		cancel()
	}
}

func entryRow(ts time.Time, kind, message string, details map[string]interface{}) store.Row {
	if ts.IsZero() {
		ts = time.Now()
	}
	raw := ""
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = string(b)
		}
	}
	return store.Row{
		"timestamp": ts.UTC(),
		"type":      kind,
		"message":   message,
		"details":   raw,
	}
}
