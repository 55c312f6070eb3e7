package vertex

import (
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestCompletionFromResponse(t *testing.T) {
	payload := []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello there"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)
	resp := CompletionFromResponse("gemini-2.0-flash-001", payload, time.Unix(1700000000, 0))
	if resp.ID != CompletionID || resp.Object != "chat.completion" || resp.Created != 1700000000 {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	c := resp.Choices[0]
	if c.Message.Role != openai.ChatMessageRoleAssistant || c.Message.Content != "Hello there" || c.FinishReason != openai.FinishReasonStop {
		t.Fatalf("unexpected choice: %+v", c)
	}
	if resp.Usage.PromptTokens != 3 || resp.Usage.CompletionTokens != 2 || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestCompletionFromResponseMissingCandidate(t *testing.T) {
	for _, payload := range []string{`{}`, `{"candidates":[]}`, `{"candidates":[{"content":{"parts":[]}}]}`, `not json`} {
		resp := CompletionFromResponse("m", []byte(payload), time.Now())
		if resp.Choices[0].Message.Content != "" {
			t.Fatalf("expected empty content for %s", payload)
		}
	}
}
