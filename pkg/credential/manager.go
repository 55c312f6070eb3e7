package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/metrics"
)

// Recorder receives one operator-visible entry per credential outcome.
type Recorder interface {
	Add(level, message string)
}

type nopRecorder struct{}

func (nopRecorder) Add(string, string) {}

// state is never mutated after it is published; a reload swaps the pointer.
type state struct {
	material   []byte
	credential ServiceCredential
	token      AccessToken
}

type Options struct {
	// Material is the service-account JSON used on first use.
	Material  []byte
	Exchanger Exchanger
	Recorder  Recorder
	Now       func() time.Time
	Skew      time.Duration
}

// Manager owns the process-wide credential/token slot.
type Manager struct {
	exchanger Exchanger
	recorder  Recorder
	now       func() time.Time
	skew      time.Duration

	mu       sync.RWMutex
	material []byte
	current  *state

	// exchangeMu serialises network exchanges; readers never wait on it.
	exchangeMu sync.Mutex
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		exchanger: opts.Exchanger,
		recorder:  opts.Recorder,
		now:       opts.Now,
		skew:      opts.Skew,
		material:  append([]byte(nil), opts.Material...),
	}
	if m.exchanger == nil {
		m.exchanger = NewGoogleExchanger("", 0)
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.skew <= 0 {
		m.skew = RefreshSkew
	}
	return m
}

func (m *Manager) snapshot() *state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) configuredMaterial() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.material
}

// Load parses raw, exchanges it for a token and, only if both succeed,
// replaces the current credential and token.
func (m *Manager) Load(ctx context.Context, raw []byte) (ServiceCredential, error) {
	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()
	next, err := m.loadLocked(ctx, raw)
	if err != nil {
		return ServiceCredential{}, err
	}
	return next.credential, nil
}

// Reload re-runs Load with the most recently configured key material.
func (m *Manager) Reload(ctx context.Context) (ServiceCredential, error) {
	return m.Load(ctx, m.configuredMaterial())
}

func (m *Manager) loadLocked(ctx context.Context, raw []byte) (*state, error) {
	cred, err := ParseServiceCredential(raw)
	if err != nil {
		m.recordFailure(err)
		return nil, err
	}
	start := m.now()
	grant, err := m.exchanger.Exchange(ctx, cred)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues("failure").Inc()
		err = fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		m.recordFailure(err)
		return nil, err
	}
	metrics.TokenExchangesTotal.WithLabelValues("success").Inc()
	lifetime := grant.ExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	next := &state{
		material:   cred.Raw,
		credential: cred,
		token:      AccessToken{Value: grant.AccessToken, ExpiresAt: start.Add(lifetime)},
	}
	m.mu.Lock()
	m.material = cred.Raw
	m.current = next
	m.mu.Unlock()

	log.Info("credentials loaded", "project", cred.ProjectID, "client_email", cred.ClientEmail, "expires_at", next.token.ExpiresAt.Format(time.RFC3339))
	m.recorder.Add("info", "credentials loaded: "+cred.ShortProjectID())
	return next, nil
}

func (m *Manager) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		log.Warn("credentials not configured")
		m.recorder.Add("error", "GOOGLE_CREDENTIALS_JSON not configured")
	case errors.Is(err, ErrMissingProjectID):
		log.Error("credentials rejected", "err", err)
		m.recorder.Add("error", "credentials missing project_id")
	case errors.Is(err, ErrMalformed):
		log.Error("credentials rejected", "err", err)
		m.recorder.Add("error", "credentials malformed: "+err.Error())
	default:
		log.Error("token exchange failed", "err", err)
		m.recorder.Add("error", "credential exchange failed: "+err.Error())
	}
}

// Session is a token together with the credential that minted it. Both come
// from one published state, so a concurrent Load never mixes them.
type Session struct {
	Token      AccessToken
	Credential ServiceCredential
}

func (st *state) session() Session {
	return Session{Token: st.token, Credential: st.credential}
}

// ValidSession returns a token with at least the refresh skew of validity
// left, loading or refreshing synchronously when needed. A failed refresh
// leaves a not yet expired cached token in place and returns it.
func (m *Manager) ValidSession(ctx context.Context) (Session, error) {
	if cur := m.snapshot(); cur != nil && cur.token.Usable(m.now(), m.skew) {
		return cur.session(), nil
	}

	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()

	// Another caller may have refreshed while we waited.
	cur := m.snapshot()
	if cur != nil && cur.token.Usable(m.now(), m.skew) {
		return cur.session(), nil
	}
	material := m.configuredMaterial()
	if cur != nil {
		material = cur.material
	}
	next, err := m.loadLocked(ctx, material)
	if err != nil {
		if cur != nil && !cur.token.Expired(m.now()) {
			log.Warn("token refresh failed, serving cached token", "expires_at", cur.token.ExpiresAt.Format(time.RFC3339))
			m.recorder.Add("warning", "refresh failed, using cached token")
			return cur.session(), nil
		}
		return Session{}, err
	}
	return next.session(), nil
}

// ValidToken is ValidSession without the credential.
func (m *Manager) ValidToken(ctx context.Context) (AccessToken, error) {
	sess, err := m.ValidSession(ctx)
	return sess.Token, err
}

// HasToken reports whether a token was ever obtained.
func (m *Manager) HasToken() bool {
	return m.snapshot() != nil
}

type Status struct {
	ProjectID   string    `json:"project"`
	ClientEmail string    `json:"client_email,omitempty"`
	HasToken    bool      `json:"cred"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

func (m *Manager) Status() Status {
	cur := m.snapshot()
	if cur == nil {
		return Status{}
	}
	return Status{
		ProjectID:   cur.credential.ProjectID,
		ClientEmail: cur.credential.ClientEmail,
		HasToken:    cur.token.Value != "",
		ExpiresAt:   cur.token.ExpiresAt,
	}
}

// ProjectID of the current credential, empty when none is loaded.
func (m *Manager) ProjectID() string {
	if cur := m.snapshot(); cur != nil {
		return cur.credential.ProjectID
	}
	return ""
}
