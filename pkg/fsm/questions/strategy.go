package questions

import (
	"fmt"

	"jobybot/pkg/config"
)

// QuestionStrategy validates the answer to one conversation step.
type QuestionStrategy interface {
	Name() string
	Validate(flowID string, step config.StepConfig) error
	Render(RenderContext) (PromptSpec, error)
	HandleAnswer(AnswerContext, AnswerInput) (AnswerResult, error)
}

// RenderContext captures what a strategy needs to build a prompt.
type RenderContext struct {
	FlowID string
	Step   config.StepConfig
}

// AnswerContext carries the step being answered and the session's fields.
// Strategies write the accepted value into Fields under Step.Field.
type AnswerContext struct {
	RenderContext
	Fields map[string]string
}

// PromptSpec is the text and the symbolic keyboard of a prompt.
type PromptSpec struct {
	Text string
	Menu string
}

// AnswerInputSource differentiates between typed text and a shared contact.
type AnswerInputSource string

const (
	InputSourceText    AnswerInputSource = "text"
	InputSourceContact AnswerInputSource = "contact"
)

const (
	TypeText   = "text"
	TypeDigits = "digits"
	TypePhone  = "phone"
)

// AnswerInput wraps user responses in a transport-agnostic struct.
type AnswerInput struct {
	Source AnswerInputSource
	Text   string
	Phone  string
}

// AnswerResult instructs the stepper how to proceed after a strategy processes an input.
type AnswerResult struct {
	Advance  bool
	Repeat   bool
	Feedback string
	// UnexpectedContact is set when a shared contact arrives at a step that wants text.
	UnexpectedContact bool
}

func (ctx AnswerContext) store(value string) error {
	if ctx.Fields == nil {
		return fmt.Errorf("fields map is nil")
	}
	if ctx.Step.Field == "" {
		return fmt.Errorf("step '%s' has no field", ctx.Step.State)
	}
	ctx.Fields[ctx.Step.Field] = value
	return nil
}

func repeat(step config.StepConfig) AnswerResult {
	return AnswerResult{Repeat: true, Feedback: step.Invalid}
}

func renderPrompt(ctx RenderContext) PromptSpec {
	return PromptSpec{Text: ctx.Step.Prompt, Menu: ctx.Step.Menu}
}
