package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestStringUsesLdflagsValues(t *testing.T) {
	oldVersion, oldCommit, oldDirty := Version, Commit, Dirty
	t.Cleanup(func() { Version, Commit, Dirty = oldVersion, oldCommit, oldDirty })

	Version = "v1.2.3"
	Commit = "0123456789abcdef"
	Dirty = "true"
	if got, want := String(), "v1.2.3+0123456789ab+dirty"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := UserAgent(); !strings.HasPrefix(got, Component+"/v1.2.3") {
		t.Fatalf("unexpected user agent %q", got)
	}
	if got := Detailed(""); !strings.HasPrefix(got, Component+" v1.2.3") {
		t.Fatalf("unexpected banner %q", got)
	}
}

func TestWithVCSOnlyFillsMissingFields(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "fedcba9876543210"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	stamped := Build{Version: "v2.0.0", Commit: "aaaaaaaaaaaaaaaa"}.withVCS(settings)
	if stamped.Commit != "aaaaaaaaaaaaaaaa" {
		t.Fatalf("linker commit overwritten: %q", stamped.Commit)
	}
	if stamped.Date != "2026-01-02T03:04:05Z" || !stamped.Dirty {
		t.Fatalf("vcs fields not filled: %+v", stamped)
	}

	bare := Build{Version: "dev"}.withVCS(settings)
	if got, want := bare.Tag(), "dev+fedcba987654+dirty"; got != want {
		t.Fatalf("Tag() = %q, want %q", got, want)
	}
	if got := bare.Banner(""); got != Component+" dev+fedcba987654+dirty\nBuilt: 2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected banner %q", got)
	}
}
