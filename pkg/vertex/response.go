package vertex

import (
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionFromResponse maps a non-streaming Vertex response body. A missing
// candidate or text part yields empty content rather than an error.
func CompletionFromResponse(model string, payload []byte, now time.Time) openai.ChatCompletionResponse {
	text, _ := FirstCandidateText(payload)
	usage := UsageMetadata(payload)
	return openai.ChatCompletionResponse{
		ID:      CompletionID,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	}
}
