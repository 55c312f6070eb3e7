package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigFileName = "vertex-proxy.toml"

	DefaultRegion = "us-central1"
	DefaultModel  = "gemini-2.0-flash-001"
)

type TLSConfig struct {
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
	Domain   string `toml:"domain" env:"DOMAIN"`
	Email    string `toml:"email" env:"EMAIL"`
	CacheDir string `toml:"cache_dir" env:"CACHE_DIR"`
}

type LogsConfig struct {
	MaxEntries int `toml:"max_entries,omitempty" env:"MAX_ENTRIES"`
}

// Config is read from an optional TOML file, then overridden by the
// environment variables named in the env tags.
type Config struct {
	ListenAddr string `toml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel   string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat  string `toml:"log_format" env:"LOG_FORMAT"`
	// Password is the shared secret for the API and the admin endpoints.
	Password       string   `toml:"password" env:"PASSWORD"`
	Region         string   `toml:"region" env:"GCP_LOCATION"`
	Model          string   `toml:"model" env:"GCP_MODEL"`
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS"`

	CredentialsJSON string `toml:"credentials_json,omitempty" env:"GOOGLE_CREDENTIALS_JSON"`
	CredentialsFile string `toml:"credentials_file,omitempty" env:"GOOGLE_APPLICATION_CREDENTIALS"`

	TokenURL               string `toml:"token_url,omitempty" env:"GCP_TOKEN_URL"`
	VertexEndpoint         string `toml:"vertex_endpoint,omitempty" env:"VERTEX_ENDPOINT"`
	UpstreamTimeoutSeconds int    `toml:"upstream_timeout_seconds,omitempty" env:"UPSTREAM_TIMEOUT_SECONDS"`

	Logs LogsConfig `toml:"logs" envPrefix:"LOG_"`
	TLS  TLSConfig  `toml:"tls" envPrefix:"TLS_"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "vertex-proxy", defaultConfigFileName)
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "vertex-proxy", "tls-autocert")
}

func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8080",
		LogLevel:               "info",
		LogFormat:              "text",
		Region:                 DefaultRegion,
		Model:                  DefaultModel,
		AllowedOrigins:         []string{"*"},
		UpstreamTimeoutSeconds: 60,
		Logs: LogsConfig{
			MaxEntries: 100,
		},
		TLS: TLSConfig{
			CacheDir: DefaultTLSCacheDir(),
		},
	}
}

// Load reads the configuration and validates it for serving.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read applies defaults, the TOML file at path when it exists, and then the
// environment. A missing file is not an error and nothing is validated.
func Read(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any of its environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := marshalTOML(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *Config) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.Password = strings.TrimSpace(c.Password)
	c.Region = strings.TrimSpace(c.Region)
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = DefaultModel
	}
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.AllowedOrigins = origins
	c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.VertexEndpoint = strings.TrimRight(strings.TrimSpace(c.VertexEndpoint), "/")
	if c.UpstreamTimeoutSeconds <= 0 {
		c.UpstreamTimeoutSeconds = 60
	}
	if c.Logs.MaxEntries <= 0 {
		c.Logs.MaxEntries = 100
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
}

func (c *Config) Validate() error {
	if c.Password == "" {
		return errors.New("password is required (set PASSWORD)")
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if strings.ContainsAny(c.Region, "/?#") {
		return fmt.Errorf("invalid region %q", c.Region)
	}
	if strings.ContainsAny(c.Model, "/?#:") {
		return fmt.Errorf("invalid model %q", c.Model)
	}
	if c.Logs.MaxEntries > 100000 {
		return errors.New("logs.max_entries must be <= 100000")
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return errors.New("tls.domain is required when tls.enabled=true")
	}
	return nil
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// CredentialMaterial returns the service-account JSON, preferring the inline
// value over the file. Empty material is not an error here.
func (c *Config) CredentialMaterial() ([]byte, error) {
	if strings.TrimSpace(c.CredentialsJSON) != "" {
		return []byte(c.CredentialsJSON), nil
	}
	if c.CredentialsFile == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return b, nil
}
