package connectors

import "context"

// Publisher delivers outbound text to a chat. Ready reports whether the
// transport has verified its identity and is currently running.
type Publisher interface {
	Ready() bool
	Publish(ctx context.Context, chatID int64, text string) error
}
