package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dwizi/telegram-relay/internal/relay"
)

func (r *router) handleGitHubWebhook(w http.ResponseWriter, req *http.Request) {
	if r.deps.Relay == nil {
		writeText(w, http.StatusServiceUnavailable, "Relay disabled")
		return
	}
	body, ok := readBody(w, req)
	if !ok {
		return
	}
	result := r.deps.Relay.HandleGitHub(req.Context(), relay.GitHubEvent{
		Event:     req.Header.Get(relay.GitHubEventHeader),
		Signature: req.Header.Get(relay.GitHubSignatureHeader),
		Body:      body,
	})
	writeResult(w, result)
}

func (r *router) handleDeploymentWebhook(w http.ResponseWriter, req *http.Request) {
	if r.deps.Relay == nil {
		writeText(w, http.StatusServiceUnavailable, "Relay disabled")
		return
	}
	body, ok := readBody(w, req)
	if !ok {
		return
	}
	secret := strings.TrimSpace(req.Header.Get(relay.DeploymentSecretHeader))
	if secret == "" {
		secret = strings.TrimSpace(req.URL.Query().Get(relay.DeploymentSecretQuery))
	}
	result := r.deps.Relay.HandleDeployment(req.Context(), relay.DeploymentEvent{
		Secret: secret,
		Body:   body,
	})
	writeResult(w, result)
}

func readBody(w http.ResponseWriter, req *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return nil, false
		}
		writeText(w, http.StatusBadRequest, "Invalid JSON payload")
		return nil, false
	}
	return body, true
}

func writeResult(w http.ResponseWriter, result relay.Result) {
	writeText(w, statusForOutcome(result.Outcome), result.Detail)
}

func statusForOutcome(outcome relay.Outcome) int {
	switch outcome {
	case relay.OutcomeNotReady:
		return http.StatusServiceUnavailable
	case relay.OutcomeUnauthorized:
		return http.StatusUnauthorized
	case relay.OutcomeMalformed:
		return http.StatusBadRequest
	case relay.OutcomeFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
