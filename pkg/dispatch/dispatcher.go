// Package dispatch routes Telegram updates through the conversation stepper
// and the main menu, persists sessions and sends replies.
package dispatch

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"jobybot/pkg/config"
	"jobybot/pkg/fsm"
	"jobybot/pkg/metrics"
	"jobybot/pkg/ports/botport"
	"jobybot/pkg/records"
	"jobybot/pkg/state"
)

// Directory is the read side of the records the menu shows.
type Directory interface {
	FindUser(ctx context.Context, telegramID int64) (*records.User, error)
	ListByCity(ctx context.Context, city string, limit int) ([]records.Job, error)
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]records.Job, error)
}

// ActionRecorder stores user actions for statistics.
type ActionRecorder interface {
	Record(ctx context.Context, action string, userID int64, details map[string]interface{})
}

type Deps struct {
	Config    *config.FlowConfig
	Stepper   *fsm.Stepper
	Sessions  state.Store
	Directory Directory
	Bot       botport.BotPort
	Stats     ActionRecorder
	Logger    *zap.Logger
}

type Dispatcher struct {
	cfg       *config.FlowConfig
	stepper   *fsm.Stepper
	sessions  state.Store
	directory Directory
	bot       botport.BotPort
	stats     ActionRecorder
	logger    *zap.Logger
	keyboards keyboards
}

func New(d Deps) (*Dispatcher, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("dispatch: flow config is nil")
	case d.Stepper == nil:
		return nil, errors.New("dispatch: stepper is nil")
	case d.Sessions == nil:
		return nil, errors.New("dispatch: session store is nil")
	case d.Directory == nil:
		return nil, errors.New("dispatch: directory is nil")
	case d.Bot == nil:
		return nil, errors.New("dispatch: bot port is nil")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Stats == nil {
		d.Stats = nopRecorder{}
	}
	return &Dispatcher{
		cfg:       d.Config,
		stepper:   d.Stepper,
		sessions:  d.Sessions,
		directory: d.Directory,
		bot:       d.Bot,
		stats:     d.Stats,
		logger:    d.Logger,
		keyboards: newKeyboards(d.Config.Menu),
	}, nil
}

// HandleUpdate processes one update. Updates of the same chat are serialized.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		metrics.UpdatesTotal.WithLabelValues("ignored").Inc()
		return
	}
	metrics.UpdatesTotal.WithLabelValues(updateKind(msg)).Inc()

	chatID := msg.Chat.ID
	unlock := d.sessions.Lock(chatID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered from panic in HandleUpdate",
				zap.Int64("chat_id", chatID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			d.send(ctx, chatID, d.cfg.Messages.InternalError, d.keyboards.main)
		}
	}()

	d.logger.Info("Action",
		zap.Int64("user_id", msg.From.ID),
		zap.String("username", msg.From.UserName),
		zap.String("text", msg.Text),
		zap.Bool("contact", msg.Contact != nil),
	)

	sess, err := d.sessions.Get(ctx, chatID)
	if err != nil {
		d.logger.Error("Failed to load session", zap.Int64("chat_id", chatID), zap.Error(err))
		d.send(ctx, chatID, d.cfg.Messages.InternalError, d.keyboards.main)
		return
	}

	if msg.IsCommand() {
		if d.handleCommand(ctx, msg, sess) {
			return
		}
	}

	in := inputFrom(msg)
	reply := d.stepper.Handle(ctx, sess, in)
	if reply.Unrecognized {
		if btn, ok := d.matchMenu(in.Text); ok {
			reply = d.runMenuAction(ctx, btn, in)
		}
	}

	d.persist(ctx, chatID, sess, reply.Session)
	if reply.Committed {
		d.stats.Record(ctx, "commit_"+string(sess.Flow), in.UserID, nil)
	}
	d.send(ctx, chatID, reply.Text, d.keyboards.forTag(reply.Menu))
}

// handleCommand runs the commands the stepper does not know. It reports whether msg was consumed.
func (d *Dispatcher) handleCommand(ctx context.Context, msg *tgbotapi.Message, sess *state.Session) bool {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		d.persist(ctx, chatID, sess, nil)
		d.send(ctx, chatID, d.cfg.Messages.Welcome, d.keyboards.main)
	case "cancel":
		reply := d.stepper.Cancel(ctx, sess)
		d.persist(ctx, chatID, sess, nil)
		d.send(ctx, chatID, reply.Text, d.keyboards.forTag(reply.Menu))
	case "help":
		var kb *botport.Keyboard
		if sess == nil {
			kb = d.keyboards.main
		}
		d.send(ctx, chatID, d.cfg.Messages.Help, kb)
	default:
		return false
	}
	return true
}

func (d *Dispatcher) persist(ctx context.Context, chatID int64, before, after *state.Session) {
	var err error
	switch {
	case after != nil:
		err = d.sessions.Put(ctx, after)
	case before != nil:
		err = d.sessions.Delete(ctx, chatID)
	}
	if err != nil {
		d.logger.Error("Failed to persist session", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, kb *botport.Keyboard) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if _, err := d.bot.SendMessage(ctx, chatID, text, kb); err != nil {
		d.logger.Warn("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func inputFrom(msg *tgbotapi.Message) fsm.Input {
	in := fsm.Input{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		UserName: msg.From.UserName,
		Text:     msg.Text,
	}
	if c := msg.Contact; c != nil {
		in.Contact = &fsm.Contact{PhoneNumber: c.PhoneNumber, FirstName: c.FirstName, UserID: c.UserID}
	}
	return in
}

func updateKind(msg *tgbotapi.Message) string {
	switch {
	case msg.Contact != nil:
		return "contact"
	case msg.IsCommand():
		return "command"
	case msg.Text != "":
		return "text"
	default:
		return "other"
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, int64, map[string]interface{}) {}

