package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/relay"
	"github.com/dwizi/telegram-relay/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

type Relay interface {
	HandleGitHub(ctx context.Context, input relay.GitHubEvent) relay.Result
	HandleDeployment(ctx context.Context, input relay.DeploymentEvent) relay.Result
}

type DeliveryStore interface {
	Ping(ctx context.Context) error
	ListRecentDeliveries(ctx context.Context, limit int) ([]store.Delivery, error)
}

type ReadinessProbe interface {
	Ready() bool
}

type Dependencies struct {
	Relay               Relay
	Deliveries          DeliveryStore
	Bot                 ReadinessProbe
	Heartbeat           *heartbeat.Registry
	HeartbeatStaleAfter time.Duration
	Logger              *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(rt.logRequests)
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", rt.handleHealth)
	mux.Get("/readyz", rt.handleReady)
	mux.Post("/github/webhook", rt.handleGitHubWebhook)
	mux.Post("/railway/webhook", rt.handleDeploymentWebhook)
	mux.Post("/deploy/webhook", rt.handleDeploymentWebhook)
	mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/heartbeat", rt.handleHeartbeat)
		r.Get("/deliveries", rt.handleDeliveries)
	})
	return mux
}

func (r *router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		r.deps.Logger.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
