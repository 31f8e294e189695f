package questions

import (
	"strings"
	"testing"

	"jobybot/pkg/config"
)

func answerContext(field, strategy string) AnswerContext {
	return AnswerContext{
		RenderContext: RenderContext{
			FlowID: config.FlowRegistration,
			Step: config.StepConfig{
				State:    "awaiting_" + field,
				Field:    field,
				Strategy: strategy,
				Prompt:   "Enter " + field,
				Invalid:  "bad " + field,
			},
		},
		Fields: make(map[string]string),
	}
}

func TestTextStrategyHandleAnswer(t *testing.T) {
	strategy := NewTextStrategy()

	for _, in := range []string{" Иван ", "\tМинск\n", "a", "Помощь на складе"} {
		ctx := answerContext("name", TypeText)
		result, err := strategy.HandleAnswer(ctx, AnswerInput{Source: InputSourceText, Text: in})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Advance {
			t.Fatalf("expected Advance=true for %q", in)
		}
		want := strings.TrimSpace(in)
		if ctx.Fields["name"] != want {
			t.Fatalf("expected stored value %q, got %q", want, ctx.Fields["name"])
		}
	}
}

func TestTextStrategyRejectsEmptyInput(t *testing.T) {
	strategy := NewTextStrategy()
	ctx := answerContext("title", TypeText)

	result, err := strategy.HandleAnswer(ctx, AnswerInput{Source: InputSourceText, Text: "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Advance || !result.Repeat {
		t.Fatalf("expected Repeat without Advance, got %+v", result)
	}
	if result.Feedback != "bad title" {
		t.Fatalf("expected invalid message feedback, got %q", result.Feedback)
	}
	if _, ok := ctx.Fields["title"]; ok {
		t.Fatalf("field must not be written on rejection")
	}
}

func TestTextStrategyRejectsContact(t *testing.T) {
	ctx := answerContext("city", TypeText)
	result, err := NewTextStrategy().HandleAnswer(ctx, AnswerInput{Source: InputSourceContact, Phone: "+375291234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Repeat || !result.UnexpectedContact {
		t.Fatalf("expected contact rejection, got %+v", result)
	}
}

func TestTextStrategyRender(t *testing.T) {
	ctx := answerContext("name", TypeText)
	ctx.Step.Menu = "cancel"
	spec, err := NewTextStrategy().Render(ctx.RenderContext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Text != "Enter name" || spec.Menu != "cancel" {
		t.Fatalf("unexpected prompt %+v", spec)
	}
}
