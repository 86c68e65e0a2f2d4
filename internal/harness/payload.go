// Package harness implements the load-generation and latency-measurement
// primitives for OpenAI-compatible chat completion endpoints: a
// session-exclusive work queue, a bounded worker pool, a per-request timer,
// conversation memory, a streaming/non-streaming requester, and the
// aggregation and persistence helpers built on top of them.
package harness

import "errors"

// ChatMessage is a single chat message. Extra carries passthrough fields
// (e.g. tool_call_id, name) that a caller's JSON payload included but that
// don't map onto Role/Content.
type ChatMessage struct {
	Role    string
	Content string
	Extra   map[string]any
}

// RequestPayload is one unit of work: a message history, an optional
// session id binding it to a ConversationMemory, and arbitrary completion
// parameters forwarded to the endpoint (temperature, top_p, tools, ...).
type RequestPayload struct {
	Messages  []ChatMessage
	SessionID *string
	Params    map[string]any
}

var (
	// ErrMissingModel is returned when a request has no model set after
	// normalization: neither the Requester's configured model nor the
	// payload's own params carried one.
	ErrMissingModel = errors.New("harness: missing model")

	// ErrMissingUsage is returned when a successful completion carries no
	// usable token-usage information (no usage chunk on a stream, or no
	// completion_tokens on a non-streaming response).
	ErrMissingUsage = errors.New("harness: missing usage information")

	// ErrUnsupportedToolKind is returned by ConversationMemory.AddToolCall
	// when a tool call's kind is not "function".
	ErrUnsupportedToolKind = errors.New("harness: unsupported tool call kind")

	// ErrQueueInvariantViolation indicates the SessionQueue's internal
	// state was found inconsistent (a bug, not a runtime condition a
	// caller can recover from).
	ErrQueueInvariantViolation = errors.New("harness: queue invariant violation")
)
