package questions

import (
	"strings"

	"jobybot/pkg/config"
)

type textStrategy struct{}

// NewTextStrategy accepts any answer that is non-empty after trimming.
func NewTextStrategy() QuestionStrategy {
	return &textStrategy{}
}

func (t *textStrategy) Name() string {
	return TypeText
}

func (t *textStrategy) Validate(flowID string, step config.StepConfig) error {
	return nil
}

func (t *textStrategy) Render(ctx RenderContext) (PromptSpec, error) {
	return renderPrompt(ctx), nil
}

func (t *textStrategy) HandleAnswer(ctx AnswerContext, input AnswerInput) (AnswerResult, error) {
	if input.Source != InputSourceText {
		return AnswerResult{Repeat: true, UnexpectedContact: true}, nil
	}

	value := strings.TrimSpace(input.Text)
	if value == "" {
		return repeat(ctx.Step), nil
	}

	if err := ctx.store(value); err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{Advance: true}, nil
}
