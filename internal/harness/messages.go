package harness

import (
	"sort"

	sdk "github.com/openai/openai-go/v2"
)

// adaptMessages converts a ChatMessage history into OpenAI SDK message
// params. Assistant messages carrying reassembled tool calls (see
// ConversationMemory.AddToolCall) are expanded into the SDK's tool-call
// message shape, sorted by stream index rather than ranged over the map
// directly, since map iteration order is not insertion order; everything
// else maps role-for-role.
func adaptMessages(msgs []ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			out = append(out, sdk.UserMessage(m.Content))
		case "assistant":
			calls, _ := m.Extra["tool_calls"].(map[int]*ToolCall)
			if len(calls) == 0 {
				out = append(out, sdk.AssistantMessage(m.Content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(m.Content)
			indices := make([]int, 0, len(calls))
			for idx := range calls {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				tc := calls[idx]
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: tc.Arguments,
						Name:      tc.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			toolCallID, _ := m.Extra["tool_call_id"].(string)
			out = append(out, sdk.ToolMessage(m.Content, toolCallID))
		}
	}
	return out
}
