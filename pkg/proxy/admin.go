package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/credential"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/logstore"
)

const (
	wsPingInterval = 25 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
)

func (s *Server) adminAuthorized(pwd string) bool {
	return secretMatches(strings.TrimSpace(pwd), s.cfg.Password)
}

type statusResponse struct {
	Project   string    `json:"project"`
	Model     string    `json:"model"`
	Region    string    `json:"region"`
	Cred      bool      `json:"cred"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r.URL.Query().Get("pwd")) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_request_error")
		return
	}
	st := s.creds.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Project:   st.ProjectID,
		Model:     s.cfg.Model,
		Region:    s.cfg.Region,
		Cred:      st.HasToken,
		ExpiresAt: st.ExpiresAt,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !s.adminAuthorized(q.Get("pwd")) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_request_error")
		return
	}
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	writeJSON(w, http.StatusOK, s.logs.List(logstore.ListFilter{
		Level: q.Get("level"),
		Query: q.Get("q"),
		Limit: limit,
	}))
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"pwd"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, updateResponse{Message: "invalid json"})
		return
	}
	if !s.adminAuthorized(req.Password) {
		writeJSON(w, http.StatusUnauthorized, updateResponse{Message: "wrong password"})
		return
	}
	s.logs.Clear()
	log.Info("operator logs cleared")
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Message: "logs cleared"})
}

type updateRequest struct {
	Password string `json:"pwd"`
	JSON     string `json:"json"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleUpdate replaces the service-account credential. The new material is
// validated and exchanged before it becomes current, so a bad upload leaves
// the running credential untouched.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, updateResponse{Message: "failed to read request body"})
		return
	}
	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, updateResponse{Message: "invalid json"})
		return
	}
	if !s.adminAuthorized(req.Password) {
		writeJSON(w, http.StatusUnauthorized, updateResponse{Message: "wrong password"})
		return
	}

	cred, err := s.creds.Load(r.Context(), []byte(req.JSON))
	if err != nil {
		writeJSON(w, http.StatusOK, updateResponse{Message: updateFailureMessage(err)})
		return
	}
	log.Info("credentials updated", "project", cred.ShortProjectID())
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Message: "credentials updated for " + cred.ShortProjectID()})
}

func updateFailureMessage(err error) string {
	switch {
	case errors.Is(err, credential.ErrNotConfigured):
		return "credentials JSON is empty"
	case errors.Is(err, credential.ErrMalformed):
		return "invalid credentials: " + err.Error()
	case errors.Is(err, credential.ErrExchangeFailed):
		return "credentials rejected by token endpoint"
	default:
		return "credential update failed"
	}
}

func (s *Server) wsOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleLogsWebsocket sends the current log backlog and then every new entry
// as one JSON text message each.
func (s *Server) handleLogsWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r.URL.Query().Get("pwd")) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_request_error")
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: s.wsOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	entries, cancel := s.logs.Subscribe()
	defer cancel()

	for _, e := range s.logs.List(logstore.ListFilter{}) {
		if err := writeWSJSON(conn, e); err != nil {
			return
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := writeWSJSON(conn, e); err != nil {
				return
			}
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}
