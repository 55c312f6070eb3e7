package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/credential"
	"github.com/lkarlslund/vertex-openai-proxy/pkg/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, version.Component+" ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTokenCommandWithoutCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	missing := filepath.Join(t.TempDir(), "missing.toml")

	_, err := execute(t, "token", "--config", missing)
	if !errors.Is(err, credential.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestServeRequiresPassword(t *testing.T) {
	t.Setenv("PASSWORD", "")
	missing := filepath.Join(t.TempDir(), "missing.toml")

	_, err := execute(t, "serve", "--config", missing)
	if err == nil || !strings.Contains(err.Error(), "password is required") {
		t.Fatalf("expected password error, got %v", err)
	}
}
