package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("llm unavailable")
	ErrEmptyReply  = errors.New("llm returned an empty reply")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Client completes a chat transcript. Implementations return ErrEmptyReply instead
// of an empty string.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// SplitSystem separates leading and interleaved system messages from the chat turns,
// for providers that take the system prompt out of band.
func SplitSystem(messages []Message) (string, []Message) {
	system := ""
	turns := make([]Message, 0, len(messages))
	for _, message := range messages {
		if message.Role != RoleSystem {
			turns = append(turns, message)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += message.Content
	}
	return system, turns
}
