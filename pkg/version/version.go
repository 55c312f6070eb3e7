package version

import (
	"cmp"
	"runtime/debug"
	"strings"
)

// Component names the binary in banners and the User-Agent.
const Component = "vertex-openai-proxy"

// Stamped by the release build, e.g.
// -ldflags "-X github.com/lkarlslund/vertex-openai-proxy/pkg/version.Version=v1.2.3".
// Commit, Date and Dirty take the same form.
var (
	Version = "dev"
	Commit  string
	Date    string
	Dirty   string
)

const shortCommitLen = 12

// Build describes the running binary.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
}

// Current merges the linker stamps with the toolchain's VCS stamps. Linker
// values win.
func Current() Build {
	b := Build{
		Version: cmp.Or(strings.TrimSpace(Version), "dev"),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
		Dirty:   isTrue(Dirty),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		b = b.withVCS(bi.Settings)
	}
	return b
}

func (b Build) withVCS(settings []debug.BuildSetting) Build {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = strings.TrimSpace(s.Value)
	}
	b.Commit = cmp.Or(b.Commit, vcs["vcs.revision"])
	b.Date = cmp.Or(b.Date, vcs["vcs.time"])
	b.Dirty = b.Dirty || isTrue(vcs["vcs.modified"])
	return b
}

func (b Build) ShortCommit() string {
	if len(b.Commit) > shortCommitLen {
		return b.Commit[:shortCommitLen]
	}
	return b.Commit
}

// Tag renders version[+commit][+dirty].
func (b Build) Tag() string {
	var sb strings.Builder
	sb.WriteString(b.Version)
	if c := b.ShortCommit(); c != "" {
		sb.WriteString("+" + c)
	}
	if b.Dirty {
		sb.WriteString("+dirty")
	}
	return sb.String()
}

func (b Build) Banner(component string) string {
	out := cmp.Or(strings.TrimSpace(component), Component) + " " + b.Tag()
	if b.Date != "" {
		out += "\nBuilt: " + b.Date
	}
	return out
}

func String() string { return Current().Tag() }

func Detailed(component string) string { return Current().Banner(component) }

// UserAgent identifies the proxy to Vertex.
func UserAgent() string {
	return Component + "/" + String()
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
