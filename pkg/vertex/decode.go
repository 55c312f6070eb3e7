package vertex

import (
	"strings"

	"github.com/tidwall/gjson"
)

const firstTextPath = "candidates.0.content.parts.0.text"

// FirstCandidateText returns the first candidate's first text part. ok is
// false when the payload is not JSON or any step of the path is absent.
func FirstCandidateText(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		return "", false
	}
	r := gjson.GetBytes(payload, firstTextPath)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

// TokenUsage mirrors Vertex usageMetadata; absent counts are zero.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func UsageMetadata(payload []byte) TokenUsage {
	meta := gjson.GetBytes(payload, "usageMetadata")
	if !meta.Exists() {
		return TokenUsage{}
	}
	u := TokenUsage{
		PromptTokens:     int(meta.Get("promptTokenCount").Int()),
		CompletionTokens: int(meta.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(meta.Get("totalTokenCount").Int()),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// DecodeStreamLine extracts the text fragment carried by one upstream SSE
// line. Lines without the data prefix, unparsable payloads, payloads without
// a text part and empty fragments all report false.
func DecodeStreamLine(line string) (string, bool) {
	payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r"), "data: ")
	if !ok {
		return "", false
	}
	text, ok := FirstCandidateText([]byte(payload))
	if !ok || text == "" {
		return "", false
	}
	return text, true
}
