// Package vertex translates OpenAI-shaped chat requests into Vertex AI
// generateContent calls and maps the responses back.
package vertex

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048

	// CompletionID is the synthetic id carried by every outbound completion.
	CompletionID = "chatcmpl-vertex"
)

type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Text returns the message content. A plain string is returned as-is; an
// OpenAI content-part array yields its text parts joined together.
func (m ChatMessage) Text() string {
	raw := strings.TrimSpace(string(m.Content))
	if raw == "" || raw == "null" {
		return ""
	}
	res := gjson.Parse(raw)
	switch {
	case res.Type == gjson.String:
		return res.String()
	case res.IsArray():
		var b strings.Builder
		res.ForEach(func(_, part gjson.Result) bool {
			if part.Type == gjson.String {
				b.WriteString(part.String())
				return true
			}
			if t := part.Get("type").String(); t != "" && t != "text" {
				return true
			}
			b.WriteString(part.Get("text").String())
			return true
		})
		return b.String()
	default:
		return ""
	}
}

// ChatRequest is the subset of the OpenAI chat-completion request this proxy
// reads. Model is accepted but never used for routing.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// LastContent is the content of the final message; earlier turns are not
// forwarded.
func (r ChatRequest) LastContent() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Text()
}

func (r ChatRequest) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

func (r ChatRequest) EffectiveMaxTokens() int {
	if r.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *r.MaxTokens
}

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type UpstreamRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}
