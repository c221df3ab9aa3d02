package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/relay"
	"github.com/dwizi/telegram-relay/internal/store"
)

type fakePublisher struct {
	ready bool
	err   error
	texts []string
}

func (f *fakePublisher) Ready() bool {
	return f.ready
}

func (f *fakePublisher) Publish(ctx context.Context, chatID int64, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

type fakeDeliveries struct {
	pingErr    error
	deliveries []store.Delivery
	lastLimit  int
}

func (f *fakeDeliveries) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeDeliveries) ListRecentDeliveries(ctx context.Context, limit int) ([]store.Delivery, error) {
	f.lastLimit = limit
	return f.deliveries, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelayRouter(publisher *fakePublisher, cfg relay.Config) http.Handler {
	return NewRouter(Dependencies{
		Relay:  relay.New(cfg, publisher, testLogger()),
		Bot:    publisher,
		Logger: testLogger(),
	})
}

func post(t *testing.T, handler http.Handler, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGitHubWebhookResponses(t *testing.T) {
	opened := `{"action":"opened","repository":{"full_name":"acme/widgets"},"pull_request":{"title":"Fix"}}`
	cases := []struct {
		name      string
		publisher *fakePublisher
		cfg       relay.Config
		event     string
		body      string
		status    int
		text      string
	}{
		{"not configured", &fakePublisher{ready: true}, relay.Config{}, "pull_request", opened, http.StatusOK, "Chat ID not configured"},
		{"not ready", &fakePublisher{}, relay.Config{Targets: []int64{1}}, "pull_request", opened, http.StatusServiceUnavailable, "Bot not ready"},
		{"ping", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}}, "ping", `{}`, http.StatusOK, "pong"},
		{"other event", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}}, "issues", `{}`, http.StatusOK, "Event ignored"},
		{"invalid json", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}}, "pull_request", `{`, http.StatusBadRequest, "Invalid JSON payload"},
		{"closed", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}}, "pull_request", `{"action":"closed","pull_request":{"title":"x"}}`, http.StatusOK, "Action ignored"},
		{"sent", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}}, "pull_request", opened, http.StatusOK, "Notification sent"},
		{"send failure", &fakePublisher{ready: true, err: errors.New("boom")}, relay.Config{Targets: []int64{1}}, "pull_request", opened, http.StatusInternalServerError, "Failed to send message"},
		{"bad signature", &fakePublisher{ready: true}, relay.Config{Targets: []int64{1}, GitHubWebhookSecret: "s"}, "pull_request", opened, http.StatusUnauthorized, "Invalid signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newRelayRouter(tc.publisher, tc.cfg)
			rec := post(t, handler, "/github/webhook", map[string]string{relay.GitHubEventHeader: tc.event}, tc.body)
			if rec.Code != tc.status || rec.Body.String() != tc.text {
				t.Fatalf("expected %d %q, got %d %q", tc.status, tc.text, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDeploymentWebhookSecretSources(t *testing.T) {
	publisher := &fakePublisher{ready: true}
	handler := newRelayRouter(publisher, relay.Config{Targets: []int64{1}, DeploymentSecret: "hook"})

	rejected := post(t, handler, "/railway/webhook", nil, `{"type":"DEPLOY"}`)
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rejected.Code)
	}
	viaHeader := post(t, handler, "/railway/webhook", map[string]string{relay.DeploymentSecretHeader: "hook"}, `{"type":"DEPLOY"}`)
	if viaHeader.Code != http.StatusOK || viaHeader.Body.String() != "Notification sent" {
		t.Fatalf("expected header secret to be accepted, got %d %q", viaHeader.Code, viaHeader.Body.String())
	}
	viaQuery := post(t, handler, "/deploy/webhook?secret=hook", nil, `{"type":"DEPLOY"}`)
	if viaQuery.Code != http.StatusOK {
		t.Fatalf("expected query secret on alias route to be accepted, got %d", viaQuery.Code)
	}
	malformed := post(t, handler, "/deploy/webhook?secret=hook", nil, `"just a string"`)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object payload, got %d", malformed.Code)
	}
	if len(publisher.texts) != 2 {
		t.Fatalf("expected two delivered notifications, got %d", len(publisher.texts))
	}
}

func TestWebhookRoutesRequirePost(t *testing.T) {
	handler := newRelayRouter(&fakePublisher{ready: true}, relay.Config{Targets: []int64{1}})
	req := httptest.NewRequest(http.MethodGet, "/github/webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	publisher := &fakePublisher{}
	deliveries := &fakeDeliveries{}
	handler := NewRouter(Dependencies{Bot: publisher, Deliveries: deliveries, Logger: testLogger()})

	get := func() int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code
	}
	if code := get(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before bot is ready, got %d", code)
	}
	publisher.ready = true
	if code := get(); code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", code)
	}
	deliveries.pingErr = errors.New("database is locked")
	if code := get(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on store failure, got %d", code)
	}
}

func TestHeartbeatAndDeliveries(t *testing.T) {
	registry := heartbeat.NewRegistry()
	registry.Beat("dispatch", "ok")
	deliveries := &fakeDeliveries{deliveries: []store.Delivery{{ID: "dlv_1", Source: "github", Outcome: "sent"}}}
	handler := NewRouter(Dependencies{
		Deliveries:          deliveries,
		Heartbeat:           registry,
		HeartbeatStaleAfter: time.Minute,
		Logger:              testLogger(),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/heartbeat", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected heartbeat 200, got %d", rec.Code)
	}
	var snapshot heartbeat.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if len(snapshot.Components) != 1 || snapshot.Components[0].Name != "dispatch" {
		t.Fatalf("unexpected heartbeat snapshot: %+v", snapshot)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deliveries?limit=5", nil))
	if rec.Code != http.StatusOK || deliveries.lastLimit != 5 {
		t.Fatalf("expected deliveries 200 with limit 5, got %d limit=%d", rec.Code, deliveries.lastLimit)
	}
	var payload struct {
		Count      int              `json:"count"`
		Deliveries []store.Delivery `json:"deliveries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if payload.Count != 1 || payload.Deliveries[0].ID != "dlv_1" {
		t.Fatalf("unexpected deliveries payload: %+v", payload)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deliveries?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestDeliveriesDisabledWithoutStore(t *testing.T) {
	handler := NewRouter(Dependencies{Logger: testLogger()})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deliveries", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %d", rec.Code)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	publisher := &fakePublisher{ready: true}
	router := newRelayRouter(publisher, relay.Config{Targets: []int64{1}})
	body := `{"type":"DEPLOY","padding":"` + strings.Repeat("x", maxWebhookBody) + `"}`

	for _, path := range []string{"/github/webhook", "/railway/webhook"} {
		rec := post(t, router, path, map[string]string{relay.GitHubEventHeader: "pull_request"}, body)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("%s: expected 413, got %d %q", path, rec.Code, rec.Body.String())
		}
	}
	if len(publisher.texts) != 0 {
		t.Fatalf("expected nothing relayed, got %d messages", len(publisher.texts))
	}
}
