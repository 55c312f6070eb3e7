package wizard

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/config"
)

// RunServerWizard prompts for the proxy settings on in, starting from cfg,
// and saves the validated result to path.
func RunServerWizard(in io.Reader, out io.Writer, path string, cfg *config.Config) error {
	sc := bufio.NewScanner(in)
	q := prompter{in: sc, out: out}
	fmt.Fprintln(out, "Vertex proxy configuration wizard")
	cfg.ListenAddr = q.ask("Listen address", cfg.ListenAddr)
	cfg.Password = q.ask("Shared password for API and admin", cfg.Password)
	cfg.Region = q.ask("Vertex region (or global)", cfg.Region)
	cfg.Model = q.ask("Vertex model", cfg.Model)
	origins := q.ask("Allowed CORS origins (comma-separated)", strings.Join(cfg.AllowedOrigins, ","))
	cfg.AllowedOrigins = splitCSV(origins)
	cfg.CredentialsFile = q.ask("Service-account key file (blank to use GOOGLE_CREDENTIALS_JSON)", cfg.CredentialsFile)

	tlsEnabled := q.ask("Enable Let's Encrypt TLS? (y/N)", boolStr(cfg.TLS.Enabled))
	cfg.TLS.Enabled = parseYes(tlsEnabled)
	if cfg.TLS.Enabled {
		cfg.TLS.Domain = q.ask("TLS domain", cfg.TLS.Domain)
		cfg.TLS.Email = q.ask("ACME email", cfg.TLS.Email)
		cfg.TLS.CacheDir = q.ask("ACME cache dir", cfg.TLS.CacheDir)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", path)
	return nil
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p prompter) ask(label, def string) string {
	if def == "" {
		fmt.Fprintf(p.out, "%s: ", label)
	} else {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	}
	if !p.in.Scan() {
		return def
	}
	txt := strings.TrimSpace(p.in.Text())
	if txt == "" {
		return def
	}
	return txt
}

func parseYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true":
		return true
	default:
		return false
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
