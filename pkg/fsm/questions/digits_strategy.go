package questions

import (
	"strconv"
	"strings"

	"jobybot/pkg/config"
)

type digitsStrategy struct{}

// NewDigitsStrategy accepts a non-negative integer written with ASCII digits only.
func NewDigitsStrategy() QuestionStrategy {
	return &digitsStrategy{}
}

func (d *digitsStrategy) Name() string {
	return TypeDigits
}

func (d *digitsStrategy) Validate(flowID string, step config.StepConfig) error {
	return nil
}

func (d *digitsStrategy) Render(ctx RenderContext) (PromptSpec, error) {
	return renderPrompt(ctx), nil
}

func (d *digitsStrategy) HandleAnswer(ctx AnswerContext, input AnswerInput) (AnswerResult, error) {
	if input.Source != InputSourceText {
		return AnswerResult{Repeat: true, UnexpectedContact: true}, nil
	}

	value := strings.TrimSpace(input.Text)
	if !isDigits(value) {
		return repeat(ctx.Step), nil
	}
	// Values that overflow int64 cannot be stored.
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return repeat(ctx.Step), nil
	}

	if err := ctx.store(value); err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{Advance: true}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
