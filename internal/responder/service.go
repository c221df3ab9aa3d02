package responder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwizi/telegram-relay/internal/gateway"
	"github.com/dwizi/telegram-relay/internal/llm"
	"github.com/dwizi/telegram-relay/internal/memory"
)

const (
	UnavailableReply = "Sorry, the bot is not ready yet."
	failureReplyForm = "Sorry, something went wrong: %v"
)

type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeAnswered    Outcome = "answered"
	OutcomeFailed      Outcome = "failed"
	OutcomeUnavailable Outcome = "unavailable"
)

// Result is the reply to send, if any. Err carries the cause of OutcomeFailed.
type Result struct {
	Outcome Outcome
	Reply   string
	Err     error
}

type PromptSource interface {
	SystemPrompt() string
}

type Service struct {
	registry *memory.Registry
	prompts  PromptSource
	client   llm.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// New wires the responder. A nil client makes every gated question answer OutcomeUnavailable.
func New(registry *memory.Registry, prompts PromptSource, client llm.Client, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		prompts:  prompts,
		client:   client,
		timeout:  timeout,
		logger:   logger,
	}
}

// Respond runs one exchange for userID. The question is recorded before the model is
// called; the answer is recorded only when the call succeeds.
func (s *Service) Respond(ctx context.Context, userID int64, rawText string) Result {
	question, ok := gateway.ExtractQuestion(rawText)
	if !ok {
		return Result{Outcome: OutcomeIgnored}
	}

	handle := s.registry.Acquire(userID)
	defer handle.Release()

	handle.AppendUser(question)
	if s.client == nil {
		s.logger.Error("llm client not configured", "user_id", userID)
		return Result{Outcome: OutcomeUnavailable, Reply: UnavailableReply}
	}

	messages := s.transcript(handle.Messages())
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	reply, err := s.client.Complete(callCtx, messages)
	if err != nil {
		s.logger.Error("llm completion failed", "user_id", userID, "messages", len(messages), "error", err)
		return Result{
			Outcome: OutcomeFailed,
			Reply:   fmt.Sprintf(failureReplyForm, err),
			Err:     err,
		}
	}

	handle.AppendAssistant(reply)
	s.logger.Info("question answered", "user_id", userID, "turns", handle.Len(), "duration_ms", time.Since(started).Milliseconds())
	return Result{Outcome: OutcomeAnswered, Reply: reply}
}

func (s *Service) transcript(turns []memory.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+1)
	if s.prompts != nil {
		if system := s.prompts.SystemPrompt(); system != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
		}
	}
	for _, turn := range turns {
		role := llm.RoleUser
		if turn.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	return messages
}
