package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/credential"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/logstore"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/metrics"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/vertex"
)

const (
	modeUnary  = "unary"
	modeStream = "stream"

	maxUpstreamErrorBytes = 64 << 10
	previewRunes          = 20
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.logs.Add(logstore.LevelError, "failed to read request body: "+err.Error())
		metrics.ChatRequestsTotal.WithLabelValues(modeUnary, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error")
		return
	}
	defer r.Body.Close()

	var req vertex.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Warn("rejected chat completion body", "err", err)
		s.logs.Add(logstore.LevelError, "invalid request json: "+err.Error())
		metrics.ChatRequestsTotal.WithLabelValues(modeUnary, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid json", "invalid_request_error")
		return
	}
	mode := modeUnary
	if req.Stream {
		mode = modeStream
	}

	// Token and project must come from the same credential.
	sess, err := s.creds.ValidSession(r.Context())
	if err != nil {
		s.writeCredentialError(w, mode, err)
		return
	}

	target := vertex.Target{
		Endpoint:  s.cfg.VertexEndpoint,
		Region:    s.cfg.Region,
		ProjectID: sess.Credential.ProjectID,
		Model:     s.cfg.Model,
	}
	upstreamURL, upstreamBody, err := vertex.Translate(target, req)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(mode, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
		return
	}
	log.Debug("chat completion", "mode", mode, "prompt", preview(req.LastContent()))

	if req.Stream {
		s.streamChat(w, r, upstreamURL, sess.Token.Value, upstreamBody)
		return
	}
	s.unaryChat(w, r, upstreamURL, sess.Token.Value, upstreamBody)
}

// writeCredentialError answers 503 while no token was ever obtained and 500
// once a previously valid token could not be refreshed.
func (s *Server) writeCredentialError(w http.ResponseWriter, mode string, err error) {
	status := http.StatusInternalServerError
	message := "failed to refresh access token"
	if !s.creds.HasToken() {
		status = http.StatusServiceUnavailable
		message = "credentials unavailable"
		if errors.Is(err, credential.ErrNotConfigured) {
			message = "credentials not configured"
		}
	}
	log.Error("no access token for chat completion", "err", err, "status", status)
	s.logs.Add(logstore.LevelError, "token error: "+err.Error())
	metrics.ChatRequestsTotal.WithLabelValues(mode, "credential_error").Inc()
	writeError(w, status, message, "credential_error")
}

func (s *Server) unaryChat(w http.ResponseWriter, r *http.Request, upstreamURL, token string, body []byte) {
	start := time.Now()
	resp, err := s.upstream.Generate(r.Context(), upstreamURL, token, body)
	metrics.UpstreamLatency.WithLabelValues(modeUnary).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeTransportError(w, modeUnary, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		s.writeUpstreamError(w, modeUnary, resp.StatusCode, resp.Body)
		return
	}

	out := vertex.CompletionFromResponse(s.cfg.Model, resp.Body, s.now())
	reply := ""
	if len(out.Choices) > 0 {
		reply = out.Choices[0].Message.Content
	}
	s.logs.Add(logstore.LevelSuccess, "completed: "+preview(reply))
	metrics.ChatRequestsTotal.WithLabelValues(modeUnary, "ok").Inc()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, upstreamURL, token string, body []byte) {
	start := time.Now()
	resp, err := s.upstream.OpenStream(r.Context(), upstreamURL, token, body)
	metrics.UpstreamLatency.WithLabelValues(modeStream).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeTransportError(w, modeStream, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamErrorBytes))
		s.writeUpstreamError(w, modeStream, resp.StatusCode, detail)
		return
	}

	metrics.StreamingConnections.Inc()
	defer metrics.StreamingConnections.Dec()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	bridge := vertex.NewBridge(s.cfg.Model)
	bridge.Now = s.now
	chunks := 0
	outcome := "upstream_error"
	for frame := range bridge.Frames(resp.Body) {
		if _, err := w.Write(frame); err != nil {
			outcome = "client_gone"
			break
		}
		_ = rc.Flush()
		if vertex.IsDoneFrame(frame) {
			outcome = "ok"
			break
		}
		chunks++
	}

	if outcome == "upstream_error" {
		// The last chunk written was the error frame.
		chunks--
		if r.Context().Err() != nil {
			outcome = "client_gone"
		}
	}
	switch outcome {
	case "ok":
		s.logs.Add(logstore.LevelSuccess, fmt.Sprintf("stream completed: %d chunks", chunks))
	case "client_gone":
		log.Warn("stream client disconnected", "chunks", chunks)
		s.logs.Add(logstore.LevelWarning, fmt.Sprintf("stream client disconnected after %d chunks", chunks))
	default:
		log.Error("stream upstream read failed", "chunks", chunks)
		s.logs.Add(logstore.LevelError, fmt.Sprintf("stream interrupted after %d chunks", chunks))
	}
	metrics.ChatRequestsTotal.WithLabelValues(modeStream, outcome).Inc()
}

func (s *Server) writeTransportError(w http.ResponseWriter, mode string, err error) {
	outcome := "transport_error"
	if errors.Is(err, vertex.ErrTimeout) {
		outcome = "timeout"
	}
	log.Error("upstream request failed", "mode", mode, "err", err)
	s.logs.Add(logstore.LevelError, "upstream request failed: "+err.Error())
	metrics.ChatRequestsTotal.WithLabelValues(mode, outcome).Inc()
	writeError(w, http.StatusInternalServerError, err.Error(), "upstream_error")
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, mode string, status int, detail []byte) {
	message := strings.TrimSpace(string(detail))
	if message == "" {
		message = http.StatusText(status)
	}
	log.Error("vertex returned an error", "mode", mode, "status", status, "body", message)
	s.logs.Add(logstore.LevelError, fmt.Sprintf("vertex error %d: %s", status, message))
	metrics.ChatRequestsTotal.WithLabelValues(mode, "upstream_status").Inc()
	writeError(w, status, message, "upstream_error")
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes]) + "..."
}
