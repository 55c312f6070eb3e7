package logstore

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestStoreRetainsNewestEntries(t *testing.T) {
	s := NewStore(Settings{MaxEntries: 3})
	s.Add("info", "one")
	s.Add("warning", "two")
	s.Add("error", "three")
	s.Add("success", "four")

	entries := s.List(ListFilter{Level: "all"})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "two" || entries[1].Message != "three" || entries[2].Message != "four" {
		t.Fatalf("unexpected order/messages: %+v", entries)
	}
}

func TestAddTruncatesAndNormalizesLevel(t *testing.T) {
	s := NewStore(Settings{})
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	s.Add("WARN", strings.Repeat("é", 150))
	s.Add("bogus", "plain")

	entries := s.List(ListFilter{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := len([]rune(entries[0].Message)); got != 100 {
		t.Fatalf("expected 100 runes, got %d", got)
	}
	if entries[0].Level != LevelWarning || entries[1].Level != LevelInfo {
		t.Fatalf("unexpected levels: %q %q", entries[0].Level, entries[1].Level)
	}
	if entries[0].Time != "03:04:05" || entries[0].ID == "" {
		t.Fatalf("unexpected time/id: %+v", entries[0])
	}
	if s.settings.MaxEntries != defaultMaxEntries {
		t.Fatalf("expected default capacity, got %d", s.settings.MaxEntries)
	}
}

func TestAddNeverStoresFilterOnlyLevels(t *testing.T) {
	s := NewStore(Settings{})
	s.Add("all", "from a filter value")
	s.Add("", "no level")

	for _, e := range s.List(ListFilter{}) {
		if e.Level != LevelInfo {
			t.Fatalf("expected info level, got %q for %q", e.Level, e.Message)
		}
	}
	if got := len(s.List(ListFilter{Level: "all"})); got != 2 {
		t.Fatalf("expected all filter to match 2 entries, got %d", got)
	}
}

func TestListFiltersByLevelAndQuery(t *testing.T) {
	s := NewStore(Settings{MaxEntries: 100})
	for i := 0; i < 5; i++ {
		s.Add("info", fmt.Sprintf("request %d", i))
	}
	s.Add("error", "upstream failed")

	if got := s.List(ListFilter{Level: "error"}); len(got) != 1 || got[0].Message != "upstream failed" {
		t.Fatalf("unexpected error filter result: %+v", got)
	}
	if got := s.List(ListFilter{Query: "REQUEST 3"}); len(got) != 1 {
		t.Fatalf("expected 1 query match, got %d", len(got))
	}
	limited := s.List(ListFilter{Limit: 2})
	if len(limited) != 2 || limited[1].Message != "upstream failed" {
		t.Fatalf("expected newest two entries, got %+v", limited)
	}
}

func TestSubscribeReceivesNewEntries(t *testing.T) {
	s := NewStore(Settings{})
	ch, cancel := s.Subscribe()
	s.Add("success", "done")
	select {
	case e := <-ch:
		if e.Message != "done" || e.Level != LevelSuccess {
			t.Fatalf("unexpected entry %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("expected entry on subscription")
	}
	cancel()
	cancel()
	s.Add("info", "after cancel")
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestClearRemovesEntries(t *testing.T) {
	s := NewStore(Settings{})
	s.Add("info", "hello")
	s.Clear()
	if got := len(s.List(ListFilter{})); got != 0 {
		t.Fatalf("expected 0 entries after clear, got %d", got)
	}
}
