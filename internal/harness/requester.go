package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sdk "github.com/openai/openai-go/v2"
	"github.com/rs/zerolog"
)

// Requester dispatches a single RequestPayload against an OpenAI-compatible
// chat-completions endpoint, streaming or not, threading it through
// ConversationMemory and a RequestTimer, and classifying the outcome into a
// RequestStatistics. It mirrors the reference OpenAIAPIRequester: one
// instance can be shared by every Pool worker since its only mutable state
// (memory, the response writer) is itself already concurrency-safe.
type Requester struct {
	sdk          sdk.Client
	model        string
	memory       *ConversationMemory
	logResponses bool
	responses    *AsyncWriter
	log          zerolog.Logger
}

// NewRequester builds a Requester. model, if non-empty, is forced onto
// every request's params, overriding any inline "model" key (spec.md §4.5
// step 2). responses may be nil when log_responses is disabled.
func NewRequester(client sdk.Client, model string, memory *ConversationMemory, responses *AsyncWriter, log zerolog.Logger) *Requester {
	return &Requester{
		sdk:          client,
		model:        model,
		memory:       memory,
		logResponses: responses != nil,
		responses:    responses,
		log:          log,
	}
}

// integrateMemory appends incoming messages to the session's history (if
// any) and, when a session is present, replaces the outgoing message list
// with the full replayed history (spec.md §4.5 step 1).
func (r *Requester) integrateMemory(payload RequestPayload) []ChatMessage {
	if payload.SessionID == nil {
		return payload.Messages
	}
	r.memory.AddMessages(*payload.SessionID, payload.Messages)
	return r.memory.GetHistory(*payload.SessionID)
}

// normalizeParams applies spec.md §4.5 step 2: force the requester's own
// model over any inline one, failing if no model is available at all. For
// streaming requests, stream_options is never taken from the caller's
// inline params — sendStreaming always sets the typed
// params.StreamOptions.IncludeUsage field itself to guarantee the final
// usage chunk, so an inline stream_options key here is only ever a no-op
// that gets a warning, never something that gets merged in.
func (r *Requester) normalizeParams(params map[string]any, stream bool) (model string, extra map[string]any, err error) {
	merged := make(map[string]any, len(params))
	for k, v := range params {
		merged[k] = v
	}
	if r.model != "" {
		merged["model"] = r.model
	}
	model, _ = merged["model"].(string)
	if model == "" {
		return "", nil, ErrMissingModel
	}
	delete(merged, "model")

	if stream {
		if _, exists := merged["stream_options"]; exists {
			r.log.Warn().Msg("stream_options_overwritten")
			delete(merged, "stream_options")
		}
	}
	return model, merged, nil
}

// Send dispatches one payload, streaming or not, and returns its
// RequestStatistics. A non-nil error is a ConfigError (spec.md §7) and
// should abort the run; every other failure mode is folded into the
// returned RequestStatistics' status code.
func (r *Requester) Send(ctx context.Context, payload RequestPayload, stream bool) (RequestStatistics, error) {
	if stream {
		return r.sendStreaming(ctx, payload)
	}
	return r.sendNonStreaming(ctx, payload)
}

func (r *Requester) sendStreaming(ctx context.Context, payload RequestPayload) (RequestStatistics, error) {
	reqID := uuid.NewString()
	messages := r.integrateMemory(payload)
	model, extra, err := r.normalizeParams(payload.Params, true)
	if err != nil {
		return RequestStatistics{}, err
	}

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model)}
	params.Messages = adaptMessages(messages)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)
	if len(extra) > 0 {
		params.SetExtraFields(extra)
	}

	var timer RequestTimer
	timer.Start()

	stream := r.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		content          string
		toolCalls        = make(map[int]*ToolCall)
		completionTokens *int
	)

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Role == "" {
				timer.MarkToken()
				if delta.Content != "" {
					content += delta.Content
				}
				for _, tc := range delta.ToolCalls {
					idx := int(tc.Index)
					if toolCalls[idx] == nil {
						toolCalls[idx] = &ToolCall{ID: tc.ID, Kind: "function"}
					}
					if tc.Function.Name != "" {
						toolCalls[idx].Name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						toolCalls[idx].Arguments += tc.Function.Arguments
					}
				}
			}
		}
		if chunk.JSON.Usage.Valid() && chunk.JSON.Usage.Raw() != "null" {
			n := int(chunk.Usage.CompletionTokens)
			completionTokens = &n
		}
	}

	if err := stream.Err(); err != nil {
		return r.classifyError(err, reqID, timer, payload)
	}

	e2e, ttft, itl, hasToken := timer.Finalize()
	outputTokens := 1 + len(itl)

	if completionTokens == nil {
		r.log.Error().Err(ErrMissingUsage).Str("request_id", reqID).Msg("chat_stream_missing_usage")
		status := 600
		return RequestStatistics{E2E: e2e, StatusCode: &status}, nil
	}
	if *completionTokens != outputTokens {
		r.log.Warn().Int("completion_tokens", *completionTokens).Int("output_tokens", outputTokens).Msg("token_count_mismatch")
	}
	tokenNum := *completionTokens

	if payload.SessionID != nil {
		if content != "" {
			r.memory.AddAssistantMessage(*payload.SessionID, content)
		}
		if len(toolCalls) > 0 {
			if err := r.memory.AddToolCall(*payload.SessionID, toolCalls); err != nil {
				r.log.Error().Err(err).Str("request_id", reqID).Str("session_id", *payload.SessionID).Msg("tool_call_reassembly_error")
				status := 600
				return RequestStatistics{E2E: e2e, StatusCode: &status}, nil
			}
		}
	}

	if r.logResponses {
		r.logResponse(content, toolCalls)
	}

	status := 200
	var ttftPtr *float64
	if hasToken {
		ttftPtr = &ttft
	}
	return RequestStatistics{
		E2E:        e2e,
		TTFT:       ttftPtr,
		ITL:        itl,
		TokenNum:   &tokenNum,
		StatusCode: &status,
	}, nil
}

func (r *Requester) sendNonStreaming(ctx context.Context, payload RequestPayload) (RequestStatistics, error) {
	reqID := uuid.NewString()
	messages := r.integrateMemory(payload)
	model, extra, err := r.normalizeParams(payload.Params, false)
	if err != nil {
		return RequestStatistics{}, err
	}

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model)}
	params.Messages = adaptMessages(messages)
	if len(extra) > 0 {
		params.SetExtraFields(extra)
	}

	start := time.Now()
	comp, err := r.sdk.Chat.Completions.New(ctx, params)
	e2e := time.Since(start).Seconds()
	if err != nil {
		return r.classifyErrorAt(err, reqID, e2e, payload)
	}

	if !comp.Usage.JSON.CompletionTokens.Valid() {
		r.log.Error().Err(ErrMissingUsage).Str("request_id", reqID).Msg("chat_completion_missing_usage")
		status := 600
		return RequestStatistics{E2E: e2e, StatusCode: &status}, nil
	}
	tokenNum := int(comp.Usage.CompletionTokens)

	var content string
	if len(comp.Choices) > 0 {
		content = comp.Choices[0].Message.Content
	}

	if payload.SessionID != nil && content != "" {
		r.memory.AddAssistantMessage(*payload.SessionID, content)
	}

	status := 200
	return RequestStatistics{E2E: e2e, TokenNum: &tokenNum, StatusCode: &status}, nil
}

// classifyError turns a streaming error into a RequestStatistics,
// distinguishing a protocol-level error (status code known) from any
// other failure, which is coerced to the local sentinel status 600.
func (r *Requester) classifyError(err error, reqID string, timer RequestTimer, payload RequestPayload) (RequestStatistics, error) {
	e2e, _, _, _ := timer.Finalize()
	return r.classifyErrorAt(err, reqID, e2e, payload)
}

func (r *Requester) classifyErrorAt(err error, reqID string, e2e float64, payload RequestPayload) (RequestStatistics, error) {
	status := 600
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	sessionID := ""
	if payload.SessionID != nil {
		sessionID = *payload.SessionID
	}
	body, _ := json.Marshal(map[string]any{"messages": payload.Messages, "params": payload.Params})
	r.log.Error().
		Err(err).
		Str("request_id", reqID).
		Str("session_id", sessionID).
		Int("status_code", status).
		Float64("elapsed", e2e).
		RawJSON("request_body", body).
		Msg("chat_completion_protocol_error")

	return RequestStatistics{E2E: e2e, StatusCode: &status}, nil
}

func (r *Requester) logResponse(content string, toolCalls map[int]*ToolCall) {
	calls := make(map[string]map[string]string, len(toolCalls))
	for idx, tc := range toolCalls {
		calls[fmt.Sprint(idx)] = map[string]string{"name": tc.Name, "arguments": tc.Arguments}
	}
	line, err := json.Marshal(map[string]any{"content": content, "tool_calls": calls})
	if err != nil {
		r.log.Error().Err(err).Msg("response_log_marshal_error")
		return
	}
	if err := r.responses.Write(string(line)); err != nil {
		r.log.Error().Err(err).Msg("response_log_write_error")
	}
}
