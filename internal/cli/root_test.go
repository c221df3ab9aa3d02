package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type botCall struct {
	method  string
	payload map[string]any
}

func newFakeBot(t *testing.T) (*httptest.Server, func() []botCall) {
	t.Helper()
	var mu sync.Mutex
	calls := []botCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		payload := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		calls = append(calls, botCall{method: method, payload: payload})
		mu.Unlock()
		if method == "getWebhookInfo" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"url": "https://relay.example.com/telegram/webhook", "pending_update_count": 3}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}))
	t.Cleanup(server.Close)
	return server, func() []botCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]botCall(nil), calls...)
	}
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(logger, nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.Execute()
	return out.String(), err
}

func TestWebhookSetUsesConfiguredURLAndSecret(t *testing.T) {
	server, calls := newFakeBot(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_API_BASE", server.URL)
	t.Setenv("TELEGRAM_WEBHOOK_URL", "https://relay.example.com/telegram/webhook")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "s3cret")

	out, err := runRoot(t, "webhook", "set")
	if err != nil {
		t.Fatalf("webhook set: %v", err)
	}
	if !strings.Contains(out, "webhook registered: https://relay.example.com/telegram/webhook") {
		t.Fatalf("unexpected output %q", out)
	}
	got := calls()
	if len(got) != 1 || got[0].method != "setWebhook" {
		t.Fatalf("expected one setWebhook call, got %+v", got)
	}
	if got[0].payload["secret_token"] != "s3cret" {
		t.Fatalf("expected secret token to be sent, got %+v", got[0].payload)
	}
}

func TestWebhookSetArgumentOverridesEnvironment(t *testing.T) {
	server, calls := newFakeBot(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_API_BASE", server.URL)
	t.Setenv("TELEGRAM_WEBHOOK_URL", "https://old.example.com/hook")

	if _, err := runRoot(t, "webhook", "set", "https://new.example.com/hook"); err != nil {
		t.Fatalf("webhook set: %v", err)
	}
	got := calls()
	if len(got) != 1 || got[0].payload["url"] != "https://new.example.com/hook" {
		t.Fatalf("expected argument url, got %+v", got)
	}
}

func TestWebhookCommandsRequireToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if _, err := runRoot(t, "webhook", "info"); err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestWebhookInfoAndDelete(t *testing.T) {
	server, calls := newFakeBot(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_API_BASE", server.URL)

	out, err := runRoot(t, "webhook", "info")
	if err != nil {
		t.Fatalf("webhook info: %v", err)
	}
	if !strings.Contains(out, `"pending_update_count": 3`) {
		t.Fatalf("expected webhook info json, got %q", out)
	}

	if _, err := runRoot(t, "webhook", "delete", "--drop-pending"); err != nil {
		t.Fatalf("webhook delete: %v", err)
	}
	got := calls()
	last := got[len(got)-1]
	if last.method != "deleteWebhook" || last.payload["drop_pending_updates"] != true {
		t.Fatalf("unexpected delete call %+v", last)
	}
}

func TestServeFailsOnInvalidConfiguration(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if _, err := runRoot(t, "serve"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("expected %q, got %q", version, out)
	}
}
