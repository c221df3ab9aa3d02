package relay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	GitHubEventHeader     = "X-GitHub-Event"
	GitHubSignatureHeader = "X-Hub-Signature-256"
)

type GitHubEvent struct {
	Event     string
	Signature string
	Body      []byte
}

func (s *Service) HandleGitHub(ctx context.Context, input GitHubEvent) Result {
	event := strings.TrimSpace(input.Event)
	if result, ok := s.precheck(); !ok {
		return s.finish(ctx, SourceGitHub, event, "", result)
	}
	if s.githubSecret != "" && !validGitHubSignature(s.githubSecret, input.Signature, input.Body) {
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomeUnauthorized, Detail: "Invalid signature"})
	}
	if event == "ping" {
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomePong, Detail: "pong"})
	}
	if event != "" && event != "pull_request" {
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomeIgnored, Detail: "Event ignored"})
	}
	if !gjson.ValidBytes(input.Body) || !gjson.ParseBytes(input.Body).IsObject() {
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomeMalformed, Detail: "Invalid JSON payload"})
	}

	payload := gjson.ParseBytes(input.Body)
	pullRequest := payload.Get("pull_request")
	if !present(pullRequest) {
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomeIgnored, Detail: "Event ignored"})
	}
	action := payload.Get("action").String()
	if action != "opened" && action != "reopened" {
		s.logger.Info("unsupported pull request action", "action", action)
		return s.finish(ctx, SourceGitHub, event, "", Result{Outcome: OutcomeIgnored, Detail: "Action ignored"})
	}
	return s.deliver(ctx, SourceGitHub, "pull_request."+action, FormatPullRequest(payload))
}

// FormatPullRequest renders the notification for an opened or reopened pull request.
func FormatPullRequest(payload gjson.Result) string {
	repo := stringOr(payload.Get("repository.full_name"), "unknown repository")
	title := stringOr(payload.Get("pull_request.title"), "(no title)")
	url := strings.TrimSpace(payload.Get("pull_request.html_url").String())
	login := strings.TrimSpace(payload.Get("sender.login").String())

	lines := []string{
		"📣 New pull request in " + repo,
		"Title: " + title,
	}
	if login != "" {
		lines = append(lines, "Author: "+login)
	}
	if url != "" {
		lines = append(lines, url)
	}
	return strings.Join(lines, "\n")
}

func validGitHubSignature(secret, signature string, body []byte) bool {
	signature = strings.TrimSpace(signature)
	digest, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// present treats missing, null, false, zero and empty values as absent.
func present(value gjson.Result) bool {
	if !value.Exists() {
		return false
	}
	switch value.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return value.String() != ""
	case gjson.Number:
		return value.Float() != 0
	}
	if value.IsObject() {
		return len(value.Map()) > 0
	}
	if value.IsArray() {
		return len(value.Array()) > 0
	}
	return true
}

func stringOr(value gjson.Result, fallback string) string {
	if !value.Exists() || value.Type == gjson.Null {
		return fallback
	}
	return value.String()
}
