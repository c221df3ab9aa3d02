package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/telegram-relay/internal/connectors"
	"github.com/dwizi/telegram-relay/internal/store"
)

type Outcome string

const (
	OutcomeNotConfigured Outcome = "not_configured"
	OutcomeNotReady      Outcome = "not_ready"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeIgnored       Outcome = "ignored"
	OutcomePong          Outcome = "pong"
	OutcomeSent          Outcome = "sent"
	OutcomeFailed        Outcome = "failed"
)

const (
	SourceGitHub     = "github"
	SourceDeployment = "deployment"
	SourceDigest     = "digest"
)

// MaxMessageLength is the Telegram text limit in characters.
const MaxMessageLength = 4096

const publishTimeout = 10 * time.Second

// Result is the terminal state of one inbound notification. Detail is the
// short text returned to the webhook caller.
type Result struct {
	Outcome       Outcome
	Detail        string
	FailedTargets []int64
	Err           error
}

// DeliveryRecorder persists terminal outcomes for audit and digests.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, input store.RecordDeliveryInput) (store.Delivery, error)
}

type Config struct {
	Targets             []int64
	GitHubWebhookSecret string
	DeploymentSecret    string
}

type Service struct {
	publisher        connectors.Publisher
	targets          []int64
	githubSecret     string
	deploymentSecret string
	recorder         DeliveryRecorder
	logger           *slog.Logger
}

type Option func(*Service)

func WithRecorder(recorder DeliveryRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func New(cfg Config, publisher connectors.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	seen := map[int64]struct{}{}
	targets := make([]int64, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	service := &Service{
		publisher:        publisher,
		targets:          targets,
		githubSecret:     strings.TrimSpace(cfg.GitHubWebhookSecret),
		deploymentSecret: strings.TrimSpace(cfg.DeploymentSecret),
		logger:           logger.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Targets() []int64 {
	return append([]int64(nil), s.targets...)
}

// Broadcast sends text to every target and records the outcome under source.
func (s *Service) Broadcast(ctx context.Context, source, event, text string) Result {
	if result, ok := s.precheck(); !ok {
		return s.finish(ctx, source, event, "", result)
	}
	return s.deliver(ctx, source, event, text)
}

func (s *Service) precheck() (Result, bool) {
	if len(s.targets) == 0 {
		return Result{Outcome: OutcomeNotConfigured, Detail: "Chat ID not configured"}, false
	}
	if s.publisher == nil || !s.publisher.Ready() {
		return Result{Outcome: OutcomeNotReady, Detail: "Bot not ready"}, false
	}
	return Result{}, true
}

// deliver attempts every target; any failure makes the whole delivery failed.
func (s *Service) deliver(ctx context.Context, source, event, text string) Result {
	text = capMessage(text, MaxMessageLength)
	var (
		failed []int64
		errs   []error
	)
	for _, target := range s.targets {
		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.publisher.Publish(publishCtx, target, text)
		cancel()
		if err != nil {
			s.logger.Error("relay publish failed",
				"source", source,
				"event", event,
				"chat_id", target,
				"error", err,
			)
			failed = append(failed, target)
			errs = append(errs, fmt.Errorf("chat %d: %w", target, err))
		}
	}
	result := Result{Outcome: OutcomeSent, Detail: "Notification sent"}
	if len(failed) > 0 {
		result = Result{
			Outcome:       OutcomeFailed,
			Detail:        "Failed to send message",
			FailedTargets: failed,
			Err:           errors.Join(errs...),
		}
	}
	return s.finish(ctx, source, event, summaryLine(text), result)
}

func (s *Service) finish(ctx context.Context, source, event, summary string, result Result) Result {
	s.logger.Info("relay event handled",
		"source", source,
		"event", event,
		"outcome", string(result.Outcome),
		"failed_targets", len(result.FailedTargets),
	)
	if s.recorder == nil {
		return result
	}
	input := store.RecordDeliveryInput{
		Source:        source,
		Event:         event,
		Outcome:       string(result.Outcome),
		FailedTargets: result.FailedTargets,
		Summary:       summary,
	}
	if result.Outcome == OutcomeSent || result.Outcome == OutcomeFailed {
		input.Targets = s.Targets()
	}
	if result.Err != nil {
		input.Error = result.Err.Error()
	}
	if _, err := s.recorder.RecordDelivery(context.WithoutCancel(ctx), input); err != nil {
		s.logger.Error("record delivery failed", "source", source, "error", err)
	}
	return result
}

func summaryLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return truncateBytes(line, 200)
}
