// Package loader reads the line-delimited JSON input file into
// harness.RequestPayload values.
package loader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"chatbench/internal/harness"
)

// Load reads path as line-delimited JSON (blank lines skipped). Every
// record must contain "session_id" (string or null) and "messages"; every
// other key is forwarded as a request parameter. Presence of "model" or
// "stream" keys triggers a warning, since the harness overrides or ignores
// them respectively (spec.md §6).
func Load(path string, log zerolog.Logger) ([]harness.RequestPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		payloads   []harness.RequestPayload
		foundModel bool
		foundSteam bool
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("loader: parsing line %d: %w", lineNo, err)
		}
		if _, ok := entry["model"]; ok {
			foundModel = true
		}
		if _, ok := entry["stream"]; ok {
			foundSteam = true
		}

		payload, err := convert(entry)
		if err != nil {
			return nil, fmt.Errorf("loader: line %d: %w", lineNo, err)
		}
		payloads = append(payloads, payload)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}

	if foundModel {
		log.Warn().Str("file", path).Msg("input_contains_model_key")
	}
	if foundSteam {
		log.Warn().Str("file", path).Msg("input_contains_stream_key")
	}

	return payloads, nil
}

func convert(entry map[string]any) (harness.RequestPayload, error) {
	sessionRaw, ok := entry["session_id"]
	if !ok {
		return harness.RequestPayload{}, fmt.Errorf("missing required key %q", "session_id")
	}
	delete(entry, "session_id")

	var sessionID *string
	if s, ok := sessionRaw.(string); ok {
		sessionID = &s
	}

	rawMessages, ok := entry["messages"]
	if !ok {
		return harness.RequestPayload{}, fmt.Errorf("missing required key %q", "messages")
	}
	delete(entry, "messages")

	messages, err := convertMessages(rawMessages)
	if err != nil {
		return harness.RequestPayload{}, err
	}

	return harness.RequestPayload{
		Messages:  messages,
		SessionID: sessionID,
		Params:    entry,
	}, nil
}

func convertMessages(raw any) ([]harness.ChatMessage, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("\"messages\" must be an array")
	}
	out := make([]harness.ChatMessage, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each message must be an object")
		}
		msg := harness.ChatMessage{Extra: make(map[string]any)}
		for k, v := range obj {
			switch k {
			case "role":
				msg.Role, _ = v.(string)
			case "content":
				msg.Content, _ = v.(string)
			default:
				msg.Extra[k] = v
			}
		}
		if len(msg.Extra) == 0 {
			msg.Extra = nil
		}
		out = append(out, msg)
	}
	return out, nil
}
