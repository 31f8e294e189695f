package questions

import (
	"fmt"

	"jobybot/pkg/config"
	"jobybot/pkg/phone"
)

type phoneStrategy struct{}

// NewPhoneStrategy accepts a typed or shared phone number that normalizes to E.164.
func NewPhoneStrategy() QuestionStrategy {
	return &phoneStrategy{}
}

func (p *phoneStrategy) Name() string {
	return TypePhone
}

func (p *phoneStrategy) Validate(flowID string, step config.StepConfig) error {
	if step.Invalid == "" {
		return fmt.Errorf("config validation failed: state '%s' in flow '%s' is type 'phone' but has no invalid message", step.State, flowID)
	}
	return nil
}

func (p *phoneStrategy) Render(ctx RenderContext) (PromptSpec, error) {
	return renderPrompt(ctx), nil
}

func (p *phoneStrategy) HandleAnswer(ctx AnswerContext, input AnswerInput) (AnswerResult, error) {
	raw := input.Text
	if input.Source == InputSourceContact {
		raw = input.Phone
	}

	normalized, ok := phone.Normalize(raw)
	if !ok {
		return repeat(ctx.Step), nil
	}

	if err := ctx.store(normalized); err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{Advance: true}, nil
}
