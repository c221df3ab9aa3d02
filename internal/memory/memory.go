// Package memory keeps short-term, per-user conversation history in process memory.
//
// Every user owns one Conversation inside a Registry. Conversations are bounded:
// appending past capacity evicts the oldest turns first. Nothing is persisted.
package memory

import "sync"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role
	Text string
}

// Conversation is the capability shared by all history strategies.
type Conversation interface {
	AppendUser(text string)
	AppendAssistant(text string)
	Clear()
	Messages() []Turn
	Len() int
	Capacity() int
}

const DefaultCapacity = 10

// Window is a fixed-size FIFO buffer of turns.
type Window struct {
	mu       sync.Mutex
	turns    []Turn
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{capacity: capacity}
}

func (w *Window) AppendUser(text string) {
	w.append(Turn{Role: RoleUser, Text: text})
}

func (w *Window) AppendAssistant(text string) {
	w.append(Turn{Role: RoleAssistant, Text: text})
}

func (w *Window) append(turn Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	if overflow := len(w.turns) - w.capacity; overflow > 0 {
		w.turns = append(w.turns[:0:0], w.turns[overflow:]...)
	}
}

func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = nil
}

func (w *Window) Messages() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Turn(nil), w.turns...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

func (w *Window) Capacity() int {
	return w.capacity
}

// BudgetWindow is a Window that also keeps the summed text size under maxBytes.
// The newest turn always survives, even when it alone exceeds the budget.
type BudgetWindow struct {
	mu       sync.Mutex
	turns    []Turn
	capacity int
	maxBytes int
	size     int
}

func NewBudgetWindow(capacity, maxBytes int) *BudgetWindow {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if maxBytes < 1 {
		maxBytes = 8000
	}
	return &BudgetWindow{capacity: capacity, maxBytes: maxBytes}
}

func (b *BudgetWindow) AppendUser(text string) {
	b.append(Turn{Role: RoleUser, Text: text})
}

func (b *BudgetWindow) AppendAssistant(text string) {
	b.append(Turn{Role: RoleAssistant, Text: text})
}

func (b *BudgetWindow) append(turn Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, turn)
	b.size += len(turn.Text)

	start := 0
	for len(b.turns)-start > 1 && (len(b.turns)-start > b.capacity || b.size > b.maxBytes) {
		b.size -= len(b.turns[start].Text)
		start++
	}
	if start > 0 {
		b.turns = append(b.turns[:0:0], b.turns[start:]...)
	}
}

func (b *BudgetWindow) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
	b.size = 0
}

func (b *BudgetWindow) Messages() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Turn(nil), b.turns...)
}

func (b *BudgetWindow) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

func (b *BudgetWindow) Capacity() int {
	return b.capacity
}
