package vertex

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
)

const maxStreamLineBytes = 4 << 20

var doneFrame = []byte("data: [DONE]\n\n")

// Bridge re-frames an upstream Vertex SSE body as OpenAI chat.completion.chunk
// events.
type Bridge struct {
	ID    string
	Model string
	Now   func() time.Time
}

func NewBridge(model string) Bridge {
	return Bridge{ID: CompletionID, Model: model, Now: time.Now}
}

// Frames yields one frame per decoded text fragment, in upstream order, then
// a single [DONE] frame. A read error yields one error frame instead and ends
// the sequence. The sequence consumes body and cannot be restarted.
func (b Bridge) Frames(body io.Reader) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)
		for sc.Scan() {
			line := sc.Text()
			text, ok := DecodeStreamLine(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					metrics.StreamLinesSkippedTotal.Inc()
				}
				continue
			}
			if !yield(b.chunkFrame(text)) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(ErrorFrame(err.Error()))
			return
		}
		yield(doneFrame)
	}
}

// IsDoneFrame reports whether frame is the normal end-of-stream marker.
func IsDoneFrame(frame []byte) bool {
	return bytes.Equal(frame, doneFrame)
}

func (b Bridge) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func (b Bridge) chunkFrame(text string) []byte {
	chunk := openai.ChatCompletionStreamResponse{
		ID:      b.ID,
		Object:  "chat.completion.chunk",
		Created: b.now().Unix(),
		Model:   b.Model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: text},
		}},
	}
	return sseFrame(chunk)
}

type streamError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ErrorFrame is the terminal frame sent when the upstream read fails.
func ErrorFrame(message string) []byte {
	var e streamError
	e.Error.Message = message
	e.Error.Type = "upstream_error"
	return sseFrame(e)
}

func sseFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"error":{"message":"encode chunk failed","type":"internal_error"}}`)
	}
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, '\n', '\n')
}
