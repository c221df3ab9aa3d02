package gateway

import (
	"context"
	"strings"

	"github.com/dwizi/telegram-relay/internal/memory"
)

const (
	StartReply        = "Hi! I am a Grok-powered bot."
	ResetClearedReply = "Conversation memory has been reset. Starting a new conversation!"
	ResetEmptyReply   = "There is no memory to reset."
)

type MemoryResetter interface {
	Reset(userID int64) memory.ResetResult
}

type MessageInput struct {
	ChatID     int64
	FromUserID int64
	Text       string
}

// MessageOutput reports whether the gateway consumed the message. A handled message
// with an empty Reply is dropped without answering.
type MessageOutput struct {
	Handled bool
	Reply   string
}

type Service struct {
	memory  MemoryResetter
	allowed map[int64]struct{}
}

// New builds the command gateway. An empty allow-list admits every user.
func New(resetter MemoryResetter, allowedUserIDs []int64) *Service {
	allowed := make(map[int64]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Service{
		memory:  resetter,
		allowed: allowed,
	}
}

func (s *Service) Allowed(userID int64) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[userID]
	return ok
}

func (s *Service) HandleMessage(ctx context.Context, input MessageInput) (MessageOutput, error) {
	if !s.Allowed(input.FromUserID) {
		return MessageOutput{Handled: true}, nil
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return MessageOutput{Handled: true}, nil
	}
	if !strings.HasPrefix(text, "/") {
		return MessageOutput{}, nil
	}

	command := commandName(text)
	switch command {
	case "start":
		return MessageOutput{Handled: true, Reply: StartReply}, nil
	case "reset":
		return s.handleReset(input), nil
	default:
		return MessageOutput{Handled: true}, nil
	}
}

func (s *Service) handleReset(input MessageInput) MessageOutput {
	if s.memory == nil {
		return MessageOutput{Handled: true, Reply: ResetEmptyReply}
	}
	switch s.memory.Reset(input.FromUserID) {
	case memory.ResetCleared:
		return MessageOutput{Handled: true, Reply: ResetClearedReply}
	default:
		return MessageOutput{Handled: true, Reply: ResetEmptyReply}
	}
}

// commandName returns the lowercased command without its leading slash or @bot suffix.
func commandName(text string) string {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(text), "/"))
	if len(fields) == 0 {
		return ""
	}
	command := strings.ToLower(fields[0])
	if idx := strings.Index(command, "@"); idx >= 0 {
		command = command[:idx]
	}
	return command
}
