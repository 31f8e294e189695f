package fakeadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobybot/pkg/ports/botport"
)

func TestSendMessageRecordsCall(t *testing.T) {
	f := &FakeAdapter{}
	kb := &botport.Keyboard{Rows: [][]botport.Button{{{Text: "ok"}}}}
	msg, err := f.SendMessage(context.Background(), 1, "hello", kb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.MessageID == 0 || msg.ChatID != 1 || msg.Payload != "hello" {
		t.Fatalf("unexpected bot message: %+v", msg)
	}
	call := f.LastCall("send_message")
	if call == nil || call.Text != "hello" || call.ChatID != 1 || call.Keyboard != kb {
		t.Fatalf("recorded call mismatch: %+v", call)
	}
}

func TestTextsFiltersByChat(t *testing.T) {
	f := &FakeAdapter{}
	ctx := context.Background()
	_, _ = f.SendMessage(ctx, 1, "a", nil)
	_, _ = f.SendMessage(ctx, 2, "b", nil)
	_, _ = f.SendMessage(ctx, 1, "c", nil)

	got := f.Texts(1)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected texts %v", got)
	}

	f.Reset()
	if len(f.Texts(1)) != 0 {
		t.Fatalf("expected no calls after reset")
	}
}

func TestFailNextWrapsError(t *testing.T) {
	f := &FakeAdapter{}
	f.Fail("send_message", errors.New("boom"))
	_, err := f.SendMessage(context.Background(), 1, "x", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	var be *botport.BotError
	if !errors.As(err, &be) {
		t.Fatalf("expected BotError, got %T", err)
	}
	if be.Code != "fake_error" {
		t.Fatalf("expected fake_error, got %s", be.Code)
	}

	if _, err := f.SendMessage(context.Background(), 1, "x", nil); err != nil {
		t.Fatalf("failure should apply to one call only: %v", err)
	}
}

func TestFailNextPassesThroughBotError(t *testing.T) {
	f := &FakeAdapter{}
	f.Fail("send_message", Forbidden("send_message"))
	_, err := f.SendMessage(context.Background(), 1, "x", nil)
	if !botport.IsCode(err, "forbidden") {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if f.LastCall("send_message") != nil {
		t.Fatalf("failed call must not be recorded")
	}
}

func TestRateLimitedHelperSetsRetryAfter(t *testing.T) {
	f := &FakeAdapter{}
	f.Fail("send_message", RateLimited("send_message", 2*time.Second))
	_, err := f.SendMessage(context.Background(), 1, "x", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	var be *botport.BotError
	if !errors.As(err, &be) {
		t.Fatalf("expected BotError, got %T", err)
	}
	if be.Code != "rate_limited" || be.RetryAfter != 2*time.Second {
		t.Fatalf("unexpected bot error: %+v", be)
	}
}

func TestCanceledContext(t *testing.T) {
	f := &FakeAdapter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.SendMessage(ctx, 1, "x", nil)
	if !botport.IsCode(err, "context_canceled") {
		t.Fatalf("expected context_canceled, got %v", err)
	}
}
