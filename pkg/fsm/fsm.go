package fsm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"jobybot/pkg/config"
	"jobybot/pkg/fsm/questions"
	"jobybot/pkg/metrics"
	"jobybot/pkg/records"
	"jobybot/pkg/state"
)

// Records is the persistence the stepper commits finished flows to.
type Records interface {
	SaveRegistration(ctx context.Context, u records.User, role records.Role) (*records.User, error)
	AddRole(ctx context.Context, telegramID int64, role records.Role) error
	CreateListing(ctx context.Context, ownerID int64, title, description string, price int64) (*records.Job, error)
}

type Contact struct {
	PhoneNumber string
	FirstName   string
	UserID      int64
}

// Input is one inbound message reduced to what the stepper reads.
type Input struct {
	ChatID   int64
	UserID   int64
	UserName string
	Text     string
	Contact  *Contact
}

// Reply is the outcome of handling one Input. A nil Session means the chat is idle.
type Reply struct {
	Session   *state.Session
	Text      string
	Menu      MenuTag
	Committed bool
	// Unrecognized marks idle input that matched no trigger.
	Unrecognized bool
	Err          error
}

// Stepper drives the registration and job posting conversations.
type Stepper struct {
	cfg      *config.FlowConfig
	records  Records
	triggers []Trigger
	logger   *zap.Logger
}

func NewStepper(cfg *config.FlowConfig, recs Records, logger *zap.Logger) (*Stepper, error) {
	if cfg == nil {
		return nil, errors.New("flow config is nil")
	}
	if recs == nil {
		return nil, errors.New("records are nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	questions.RegisterBuiltins()
	for _, flow := range []state.Flow{state.FlowRegistration, state.FlowJobPosting} {
		for _, st := range FlowStates(flow) {
			step, ok := cfg.Step(string(flow), st)
			if !ok {
				return nil, fmt.Errorf("flow config has no step for state '%s' of flow '%s'", st, flow)
			}
			if _, err := questions.ForStep(step); err != nil {
				return nil, err
			}
		}
	}

	return &Stepper{
		cfg:      cfg,
		records:  recs,
		triggers: TriggersFromConfig(cfg.Triggers),
		logger:   logger,
	}, nil
}

// Handle advances the conversation of one chat. sess is nil when the chat is idle.
func (s *Stepper) Handle(ctx context.Context, sess *state.Session, in Input) Reply {
	if sess == nil {
		return s.start(ctx, in)
	}
	if in.Contact == nil && s.isCancel(in.Text) {
		return s.Cancel(ctx, sess)
	}
	return s.advance(ctx, sess, in)
}

// Cancel abandons the conversation without committing anything.
func (s *Stepper) Cancel(ctx context.Context, sess *state.Session) Reply {
	if sess == nil {
		return Reply{Text: s.cfg.Messages.NothingToCancel, Menu: MenuMain}
	}

	machine, err := newFlowFSM(sess.Flow, sess.State, nil)
	if err == nil {
		err = machine.Event(ctx, EventCancel)
	}
	if err != nil {
		s.logger.Warn("Cancel transition failed, dropping session",
			zap.Int64("chat_id", sess.ChatID),
			zap.String("state", sess.State),
			zap.Error(err),
		)
	}
	s.logger.Info("Conversation cancelled", zap.Int64("chat_id", sess.ChatID), zap.String("flow", string(sess.Flow)))
	return Reply{Text: s.cfg.Messages.Cancelled, Menu: MenuMain}
}

func (s *Stepper) start(ctx context.Context, in Input) Reply {
	if in.Contact != nil {
		return Reply{Text: s.cfg.Messages.Unrecognized, Menu: MenuMain, Unrecognized: true}
	}
	trigger, ok := MatchTrigger(s.triggers, in.Text)
	if !ok {
		return Reply{Text: s.cfg.Messages.Unrecognized, Menu: MenuMain, Unrecognized: true}
	}
	return s.StartFlow(ctx, in, trigger.Flow(), trigger.Role())
}

// StartFlow begins flow for the sender of in, ignoring its text. Used for
// triggers and for menu buttons that open a flow.
func (s *Stepper) StartFlow(ctx context.Context, in Input, flow state.Flow, role records.Role) Reply {
	sess := state.NewSession(in.ChatID, in.UserID, in.UserName, flow)
	sess.Role = string(role)
	sess.State = StateIdle

	machine, err := newFlowFSM(sess.Flow, StateIdle, s.callbacks())
	if err != nil {
		return s.internalError(nil, err)
	}
	if err := machine.Event(ctx, EventStart); err != nil {
		return s.internalError(nil, fmt.Errorf("start %s: %w", sess.Flow, err))
	}
	sess.State = machine.Current()

	s.logger.Info("Conversation started",
		zap.Int64("chat_id", in.ChatID),
		zap.Int64("user_id", in.UserID),
		zap.String("flow", string(sess.Flow)),
		zap.String("role", sess.Role),
	)
	return s.prompt(sess, "")
}

func (s *Stepper) advance(ctx context.Context, sess *state.Session, in Input) Reply {
	step, ok := s.cfg.Step(string(sess.Flow), sess.State)
	if !ok {
		return s.internalError(nil, fmt.Errorf("session of chat %d is in unknown state '%s'", sess.ChatID, sess.State))
	}
	machine, err := newFlowFSM(sess.Flow, sess.State, s.callbacks())
	if err != nil {
		return s.internalError(nil, err)
	}

	if in.Contact == nil && sess.State == StateAwaitingPhoneChoice && strings.TrimSpace(in.Text) == s.cfg.Menu.TypeManually {
		if err := machine.Event(ctx, EventManualPhone); err != nil {
			return s.internalError(sess, err)
		}
		next := sess.Clone()
		next.State = machine.Current()
		return s.prompt(next, "")
	}

	strategy, err := questions.ForStep(step)
	if err != nil {
		return s.internalError(sess, err)
	}

	fields := sess.Clone().Fields
	result, err := strategy.HandleAnswer(questions.AnswerContext{
		RenderContext: questions.RenderContext{FlowID: string(sess.Flow), Step: step},
		Fields:        fields,
	}, answerInput(in))
	if err != nil {
		return s.internalError(sess, err)
	}

	if !result.Advance {
		metrics.ValidationFailuresTotal.WithLabelValues(sess.State).Inc()
		feedback := result.Feedback
		if result.UnexpectedContact {
			feedback = s.cfg.Messages.ContactUnexpected
		}
		return s.prompt(sess, feedback)
	}

	next := sess.Clone()
	next.Fields = fields

	if !machine.Can(EventCommit) {
		if err := machine.Event(ctx, EventAnswer); err != nil {
			return s.internalError(sess, err)
		}
		next.State = machine.Current()
		return s.prompt(next, "")
	}

	run := &commitRun{session: next}
	if err := machine.Event(ctx, EventCommit, run); err != nil && !isNoTransitionError(err) {
		metrics.CommitsTotal.WithLabelValues(string(sess.Flow), "error").Inc()
		s.logger.Error("Commit failed",
			zap.Int64("chat_id", sess.ChatID),
			zap.String("flow", string(sess.Flow)),
			zap.Bool("canceled", isCanceledError(err)),
			zap.Error(err),
		)
		return Reply{
			Session: sess,
			Text:    s.cfg.Messages.CommitFailed,
			Menu:    menuTag(step.Menu),
			Err:     err,
		}
	}

	metrics.CommitsTotal.WithLabelValues(string(sess.Flow), "ok").Inc()
	return Reply{Text: run.confirmation, Menu: MenuMain, Committed: true}
}

// commitRun is passed to the commit event and filled in by its callback.
type commitRun struct {
	session      *state.Session
	confirmation string
}

func (s *Stepper) callbacks() fsm.Callbacks {
	return fsm.Callbacks{
		"before_" + EventCommit: func(ctx context.Context, e *fsm.Event) {
			run, ok := commitArg(e)
			if !ok {
				e.Cancel(errors.New("commit event without session"))
				return
			}
			if err := s.commit(ctx, run); err != nil {
				e.Cancel(err)
			}
		},
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			s.logger.Debug("Transition", zap.String("event", e.Event), zap.String("src", e.Src), zap.String("dst", e.Dst))
		},
	}
}

func commitArg(e *fsm.Event) (*commitRun, bool) {
	if len(e.Args) == 0 {
		return nil, false
	}
	run, ok := e.Args[0].(*commitRun)
	return run, ok && run != nil && run.session != nil
}

func (s *Stepper) commit(ctx context.Context, run *commitRun) error {
	sess := run.session
	flow := s.cfg.Flows[string(sess.Flow)]

	switch sess.Flow {
	case state.FlowRegistration:
		role, ok := records.ParseRole(sess.Role)
		if !ok {
			role = records.RoleSeeker
		}
		user, err := s.records.SaveRegistration(ctx, records.User{
			TelegramID: sess.UserID,
			UserName:   sess.UserName,
			Name:       sess.Fields[FieldName],
			City:       sess.Fields[FieldCity],
			Phone:      sess.Fields[FieldPhone],
		}, role)
		if err != nil {
			return err
		}
		run.confirmation = config.Render("registration.done", flow.Done, user)

	case state.FlowJobPosting:
		price, err := strconv.ParseInt(sess.Fields[FieldPrice], 10, 64)
		if err != nil || price < 0 {
			return fmt.Errorf("invalid price %q", sess.Fields[FieldPrice])
		}
		if err := s.records.AddRole(ctx, sess.UserID, records.RolePoster); err != nil {
			return err
		}
		job, err := s.records.CreateListing(ctx, sess.UserID, sess.Fields[FieldTitle], sess.Fields[FieldDescription], price)
		if err != nil {
			return err
		}
		run.confirmation = config.Render("job_posting.done", flow.Done, job)

	default:
		return fmt.Errorf("unknown flow '%s'", sess.Flow)
	}

	s.logger.Info("Conversation committed",
		zap.Int64("chat_id", sess.ChatID),
		zap.Int64("user_id", sess.UserID),
		zap.String("flow", string(sess.Flow)),
	)
	return nil
}

// prompt asks the question of sess's current state, optionally preceded by feedback.
func (s *Stepper) prompt(sess *state.Session, feedback string) Reply {
	step, ok := s.cfg.Step(string(sess.Flow), sess.State)
	if !ok {
		return s.internalError(nil, fmt.Errorf("no step for state '%s'", sess.State))
	}
	strategy, err := questions.ForStep(step)
	if err != nil {
		return s.internalError(nil, err)
	}
	spec, err := strategy.Render(questions.RenderContext{FlowID: string(sess.Flow), Step: step})
	if err != nil {
		return s.internalError(nil, err)
	}

	text := spec.Text
	if feedback != "" {
		text = feedback + "\n\n" + spec.Text
	}
	return Reply{Session: sess, Text: text, Menu: menuTag(spec.Menu)}
}

func (s *Stepper) internalError(sess *state.Session, err error) Reply {
	s.logger.Error("Stepper failure", zap.Error(err))
	menu := MenuMain
	if sess != nil {
		menu = MenuNone
		if step, ok := s.cfg.Step(string(sess.Flow), sess.State); ok {
			menu = menuTag(step.Menu)
		}
	}
	return Reply{Session: sess, Text: s.cfg.Messages.InternalError, Menu: menu, Err: err}
}

func (s *Stepper) isCancel(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && t == s.cfg.Menu.Cancel
}

func answerInput(in Input) questions.AnswerInput {
	if in.Contact != nil {
		return questions.AnswerInput{Source: questions.InputSourceContact, Phone: in.Contact.PhoneNumber}
	}
	return questions.AnswerInput{Source: questions.InputSourceText, Text: in.Text}
}
