package gateway

import (
	"context"
	"testing"

	"github.com/dwizi/telegram-relay/internal/memory"
)

type fakeResetter struct {
	result memory.ResetResult
	calls  []int64
}

func (f *fakeResetter) Reset(userID int64) memory.ResetResult {
	f.calls = append(f.calls, userID)
	return f.result
}

func TestHandleMessageStart(t *testing.T) {
	service := New(&fakeResetter{}, nil)
	output, err := service.HandleMessage(context.Background(), MessageInput{ChatID: 1, FromUserID: 1, Text: "/start"})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !output.Handled || output.Reply != StartReply {
		t.Fatalf("unexpected output: %+v", output)
	}
}

func TestHandleMessageResetVariants(t *testing.T) {
	resetter := &fakeResetter{result: memory.ResetNotFound}
	service := New(resetter, nil)

	output, err := service.HandleMessage(context.Background(), MessageInput{FromUserID: 5, Text: "/reset"})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if output.Reply != ResetEmptyReply {
		t.Fatalf("expected empty reset reply, got %q", output.Reply)
	}

	resetter.result = memory.ResetCleared
	output, err = service.HandleMessage(context.Background(), MessageInput{FromUserID: 5, Text: "/reset@relay_bot"})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if output.Reply != ResetClearedReply {
		t.Fatalf("expected cleared reset reply, got %q", output.Reply)
	}
	if len(resetter.calls) != 2 || resetter.calls[1] != 5 {
		t.Fatalf("expected reset for user 5 twice, got %v", resetter.calls)
	}
}

func TestHandleMessageResetsRealRegistry(t *testing.T) {
	registry := memory.NewRegistry(memory.Options{Capacity: 4})
	service := New(registry, nil)

	output, _ := service.HandleMessage(context.Background(), MessageInput{FromUserID: 9, Text: "/reset"})
	if output.Reply != ResetEmptyReply {
		t.Fatalf("expected nothing to reset, got %q", output.Reply)
	}

	handle := registry.Acquire(9)
	handle.AppendUser("hello")
	handle.Release()

	output, _ = service.HandleMessage(context.Background(), MessageInput{FromUserID: 9, Text: "/reset"})
	if output.Reply != ResetClearedReply {
		t.Fatalf("expected cleared reply, got %q", output.Reply)
	}
	turns, _ := registry.Lookup(9)
	if len(turns) != 0 {
		t.Fatalf("expected memory cleared, got %d turns", len(turns))
	}
}

func TestHandleMessageIgnoresUnknownCommands(t *testing.T) {
	service := New(&fakeResetter{}, nil)
	output, _ := service.HandleMessage(context.Background(), MessageInput{FromUserID: 1, Text: "/weather tomorrow"})
	if !output.Handled || output.Reply != "" {
		t.Fatalf("expected silently handled command, got %+v", output)
	}
}

func TestHandleMessagePassesPlainText(t *testing.T) {
	service := New(&fakeResetter{}, nil)
	output, _ := service.HandleMessage(context.Background(), MessageInput{FromUserID: 1, Text: "1 what is go?"})
	if output.Handled {
		t.Fatalf("expected plain text to fall through, got %+v", output)
	}
}

func TestHandleMessageEnforcesAllowList(t *testing.T) {
	resetter := &fakeResetter{result: memory.ResetCleared}
	service := New(resetter, []int64{100})

	output, _ := service.HandleMessage(context.Background(), MessageInput{FromUserID: 200, Text: "/reset"})
	if !output.Handled || output.Reply != "" {
		t.Fatalf("expected blocked user to be dropped, got %+v", output)
	}
	if len(resetter.calls) != 0 {
		t.Fatalf("blocked user must not reach memory, got %v", resetter.calls)
	}

	output, _ = service.HandleMessage(context.Background(), MessageInput{FromUserID: 100, Text: "1 question"})
	if output.Handled {
		t.Fatalf("expected allowed user to fall through, got %+v", output)
	}
}

func TestCommandName(t *testing.T) {
	cases := map[string]string{
		"/Reset@MyBot now please": "reset",
		"  /start":                "start",
		"/":                       "",
	}
	for input, want := range cases {
		if got := commandName(input); got != want {
			t.Fatalf("commandName(%q): expected %q, got %q", input, want, got)
		}
	}
}
