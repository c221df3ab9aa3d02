package relay

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DeploymentSecretHeader = "X-Webhook-Secret"
	DeploymentSecretQuery  = "secret"
)

type DeploymentEvent struct {
	Secret string
	Body   []byte
}

func (s *Service) HandleDeployment(ctx context.Context, input DeploymentEvent) Result {
	if result, ok := s.precheck(); !ok {
		return s.finish(ctx, SourceDeployment, "", "", result)
	}
	if s.deploymentSecret != "" &&
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(input.Secret)), []byte(s.deploymentSecret)) != 1 {
		return s.finish(ctx, SourceDeployment, "", "", Result{Outcome: OutcomeUnauthorized, Detail: "Invalid secret"})
	}
	if !gjson.ValidBytes(input.Body) {
		return s.finish(ctx, SourceDeployment, "", "", Result{Outcome: OutcomeMalformed, Detail: "Invalid JSON payload"})
	}
	payload := gjson.ParseBytes(input.Body)
	if !payload.IsObject() {
		return s.finish(ctx, SourceDeployment, "", "", Result{Outcome: OutcomeMalformed, Detail: "Payload must be a JSON object"})
	}
	event := strings.ToLower(strings.TrimSpace(payload.Get("type").String()))
	return s.deliver(ctx, SourceDeployment, event, FormatDeployment(payload))
}

// FormatDeployment renders a deployment status change with a bounded echo of
// the raw payload.
func FormatDeployment(payload gjson.Result) string {
	headline := "🚀 Deployment notification"
	status := joinNonEmpty(" ",
		payload.Get("type").String(),
		payload.Get("status").String(),
	)
	if status != "" {
		headline = "🚀 Deployment " + status
	}
	lines := []string{headline}
	fields := []struct {
		label string
		path  string
	}{
		{"Project", "project.name"},
		{"Environment", "environment.name"},
		{"Service", "service.name"},
		{"Deployment", "deployment.id"},
		{"Triggered by", "deployment.creator.name"},
	}
	for _, field := range fields {
		if value := strings.TrimSpace(payload.Get(field.path).String()); value != "" {
			lines = append(lines, field.label+": "+value)
		}
	}
	if change := describeChange(payload); change != "" {
		lines = append(lines, "Change: "+change)
	}

	raw := strings.TrimSpace(payload.Get("@ugly").Raw)
	if raw == "" {
		raw = strings.TrimSpace(payload.Raw)
	}
	lines = append(lines, "", "Payload:", truncateBytes(raw, MaxPayloadEcho))
	return capMessage(strings.Join(lines, "\n"), MaxMessageLength)
}

func describeChange(payload gjson.Result) string {
	change := payload.Get("change")
	if change.IsObject() {
		if text := joinNonEmpty(" ", change.Get("type").String(), change.Get("message").String()); text != "" {
			return text
		}
	} else if text := strings.TrimSpace(change.String()); text != "" {
		return text
	}
	if description := strings.TrimSpace(payload.Get("description").String()); description != "" {
		return description
	}
	return strings.TrimSpace(payload.Get("deployment.meta.commitMessage").String())
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, sep)
}
