package harness

import (
	"fmt"
	"sync"
)

// ToolCall is one assistant-issued tool invocation, keyed by its stream
// index and carrying the concatenated (possibly still-growing) arguments
// fragment. Only Kind "function" is supported (an empty Kind is treated as
// "function"); ConversationMemory.AddToolCall rejects anything else with
// ErrUnsupportedToolKind.
type ToolCall struct {
	ID        string
	Kind      string
	Name      string
	Arguments string
}

// ConversationMemory holds, per session id, the message history a
// Requester replays on every subsequent turn. A single mutex guards the
// whole map: contention is bounded by concurrency, not message volume, so
// a coarse lock (matching the pack's own choice for shared state of this
// shape) is the right tool rather than per-session locks.
type ConversationMemory struct {
	mu         sync.Mutex
	sessions   map[string][]ChatMessage
	maxHistory int // 0 means unbounded
}

// NewConversationMemory constructs an empty memory. maxHistory, if > 0,
// caps each session's history to its most recent N messages after every
// mutation.
func NewConversationMemory(maxHistory int) *ConversationMemory {
	return &ConversationMemory{
		sessions:   make(map[string][]ChatMessage),
		maxHistory: maxHistory,
	}
}

// AddMessages appends incoming messages to a session's history.
func (m *ConversationMemory) AddMessages(sessionID string, msgs []ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msgs...)
	m.truncate(sessionID)
}

// AddAssistantMessage appends a single assistant-role message carrying the
// accumulated streamed content.
func (m *ConversationMemory) AddAssistantMessage(sessionID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], ChatMessage{
		Role:    "assistant",
		Content: content,
	})
	m.truncate(sessionID)
}

// AddToolCall appends a single assistant message recording the tool calls
// issued during the turn. Every call must be of kind "function" (an empty
// Kind counts as "function"); otherwise ErrUnsupportedToolKind is returned and the session's history is left
// unchanged.
func (m *ConversationMemory) AddToolCall(sessionID string, calls map[int]*ToolCall) error {
	for _, tc := range calls {
		if tc.Kind != "" && tc.Kind != "function" {
			return fmt.Errorf("%w: %q", ErrUnsupportedToolKind, tc.Kind)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], ChatMessage{
		Role:  "assistant",
		Extra: map[string]any{"tool_calls": calls},
	})
	m.truncate(sessionID)
	return nil
}

// GetHistory returns the session's current message history. Per spec, this
// is reference-stable within a single call's lifetime; callers must not
// retain the slice across subsequent mutations without copying it.
func (m *ConversationMemory) GetHistory(sessionID string) []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Clear removes a session's history entirely.
func (m *ConversationMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// truncate must be called with mu held.
func (m *ConversationMemory) truncate(sessionID string) {
	if m.maxHistory <= 0 {
		return
	}
	hist := m.sessions[sessionID]
	if len(hist) > m.maxHistory {
		m.sessions[sessionID] = hist[len(hist)-m.maxHistory:]
	}
}
