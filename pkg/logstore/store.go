package logstore

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultMaxEntries = 100
	maxMessageRunes   = 100
	subscriberBuffer  = 64
)

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

type Settings struct {
	MaxEntries int `json:"max_entries"`
}

type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Time      string    `json:"time"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
}

type ListFilter struct {
	Level string
	Query string
	Limit int
}

// Store is an in-memory ring of the most recent operator log entries.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	entries  []Entry
	subs     map[chan Entry]struct{}

	now func() time.Time
}

func normalizeSettings(s Settings) Settings {
	out := s
	if out.MaxEntries <= 0 {
		out.MaxEntries = defaultMaxEntries
	}
	return out
}

func NewStore(settings Settings) *Store {
	return &Store{
		settings: normalizeSettings(settings),
		entries:  []Entry{},
		subs:     map[chan Entry]struct{}{},
		now:      time.Now,
	}
}

// Add appends an entry; unknown levels are recorded as info and messages are
// cut to 100 runes.
func (s *Store) Add(level, message string) {
	message = truncate(strings.TrimSpace(message), maxMessageRunes)
	if message == "" {
		return
	}
	level = normalizeLevel(level)
	if level == "" {
		level = LevelInfo
	}
	ts := s.now()
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		Time:      ts.Format("15:04:05"),
		Level:     level,
		Message:   message,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.pruneLocked()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			// slow subscriber, drop
		}
	}
}

// List returns matching entries oldest first.
func (s *Store) List(filter ListFilter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level := normalizeLevel(filter.Level)
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	limit := filter.Limit
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if !levelMatchesFilter(level, e.Level) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Message), query) {
			continue
		}
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

// Subscribe delivers every entry added after the call until cancel runs.
func (s *Store) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) pruneLocked() {
	maxEntries := s.settings.MaxEntries
	if len(s.entries) <= maxEntries {
		return
	}
	s.entries = append([]Entry(nil), s.entries[len(s.entries)-maxEntries:]...)
}

func levelMatchesFilter(filterLevel, entryLevel string) bool {
	if filterLevel == "" {
		return true
	}
	return entryLevel == filterLevel
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info", "inf", "debug":
		return LevelInfo
	case "success", "ok":
		return LevelSuccess
	case "warn", "warning", "wrn":
		return LevelWarning
	case "error", "erro", "err", "fatal":
		return LevelError
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
