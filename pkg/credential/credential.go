// Package credential turns a Google service-account key into short-lived
// OAuth2 access tokens and keeps the current token fresh.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConfigured = errors.New("service account credentials not configured")
	ErrMalformed     = errors.New("malformed service account credentials")
	// ErrMissingProjectID also matches ErrMalformed.
	ErrMissingProjectID = fmt.Errorf("%w: missing project_id", ErrMalformed)
	ErrExchangeFailed   = errors.New("token exchange failed")
)

// ServiceCredential is a parsed service-account key. Raw keeps the original
// JSON so the exchanger can hand it to the oauth2 library unchanged.
type ServiceCredential struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`

	Raw []byte `json:"-"`
}

// ParseServiceCredential validates all required fields at once; a key that
// lacks any of them is rejected as a whole.
func ParseServiceCredential(raw []byte) (ServiceCredential, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return ServiceCredential{}, ErrNotConfigured
	}
	var c ServiceCredential
	if err := json.Unmarshal(raw, &c); err != nil {
		return ServiceCredential{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.Type = strings.TrimSpace(c.Type)
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.ClientEmail = strings.TrimSpace(c.ClientEmail)
	if c.ProjectID == "" {
		return ServiceCredential{}, ErrMissingProjectID
	}
	missing := make([]string, 0, 3)
	if c.Type == "" {
		missing = append(missing, "type")
	}
	if c.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return ServiceCredential{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	c.Raw = append([]byte(nil), raw...)
	return c, nil
}

// ShortProjectID is the redacted form used in log lines.
func (c ServiceCredential) ShortProjectID() string {
	if len(c.ProjectID) <= 8 {
		return c.ProjectID
	}
	return c.ProjectID[:8] + "..."
}
