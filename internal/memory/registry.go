package memory

import (
	"strings"
	"sync"
)

const (
	StrategyWindow = "window"
	StrategyBudget = "budget"
)

type Options struct {
	Strategy string
	Capacity int
	MaxBytes int
}

type ResetResult int

const (
	ResetNotFound ResetResult = iota
	ResetCleared
)

type entry struct {
	exchange     sync.Mutex
	conversation Conversation
}

// Registry maps user ids to their Conversation. It is safe for concurrent use.
type Registry struct {
	opts    Options
	mu      sync.RWMutex
	entries map[int64]*entry
}

func NewRegistry(opts Options) *Registry {
	opts.Strategy = strings.ToLower(strings.TrimSpace(opts.Strategy))
	if opts.Strategy == "" {
		opts.Strategy = StrategyWindow
	}
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	return &Registry{
		opts:    opts,
		entries: map[int64]*entry{},
	}
}

// Handle grants exclusive use of one user's conversation until Release. A released
// handle no longer reads or writes the conversation.
type Handle struct {
	entry *entry

	mu           sync.Mutex
	conversation Conversation
}

func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conversation == nil {
		return
	}
	h.conversation = nil
	h.entry.exchange.Unlock()
}

func (h *Handle) active() Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conversation
}

func (h *Handle) AppendUser(text string) {
	if conversation := h.active(); conversation != nil {
		conversation.AppendUser(text)
	}
}

func (h *Handle) AppendAssistant(text string) {
	if conversation := h.active(); conversation != nil {
		conversation.AppendAssistant(text)
	}
}

func (h *Handle) Messages() []Turn {
	if conversation := h.active(); conversation != nil {
		return conversation.Messages()
	}
	return nil
}

func (h *Handle) Len() int {
	if conversation := h.active(); conversation != nil {
		return conversation.Len()
	}
	return 0
}

func (h *Handle) Capacity() int {
	if conversation := h.active(); conversation != nil {
		return conversation.Capacity()
	}
	return 0
}

// Acquire returns the user's conversation, creating it on first use, locked for one
// exchange. Concurrent exchanges of the same user wait for each other.
func (r *Registry) Acquire(userID int64) *Handle {
	item := r.getOrCreate(userID)
	item.exchange.Lock()
	return &Handle{conversation: item.conversation, entry: item}
}

// Lookup returns a copy of the user's turns without creating an entry.
func (r *Registry) Lookup(userID int64) ([]Turn, bool) {
	r.mu.RLock()
	item, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return item.conversation.Messages(), true
}

// Reset clears the user's conversation in place. It never creates an entry.
func (r *Registry) Reset(userID int64) ResetResult {
	r.mu.RLock()
	item, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return ResetNotFound
	}
	item.exchange.Lock()
	defer item.exchange.Unlock()
	item.conversation.Clear()
	return ResetCleared
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) getOrCreate(userID int64) *entry {
	r.mu.RLock()
	item, ok := r.entries[userID]
	r.mu.RUnlock()
	if ok {
		return item
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.entries[userID]; ok {
		return item
	}
	item = &entry{conversation: r.newConversation()}
	r.entries[userID] = item
	return item
}

func (r *Registry) newConversation() Conversation {
	switch r.opts.Strategy {
	case StrategyBudget:
		return NewBudgetWindow(r.opts.Capacity, r.opts.MaxBytes)
	default:
		return NewWindow(r.opts.Capacity)
	}
}
