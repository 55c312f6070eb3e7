package credential

import "time"

const (
	// RefreshSkew is how long before expiry a token stops being handed out.
	RefreshSkew = 300 * time.Second
	// DefaultTokenLifetime applies when the token endpoint omits expires_in.
	DefaultTokenLifetime = 1800 * time.Second
)

type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Usable reports whether t can still be presented upstream at now.
func (t AccessToken) Usable(now time.Time, skew time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-skew))
}

// Expired reports whether t is past its hard expiry.
func (t AccessToken) Expired(now time.Time) bool {
	return t.Value == "" || !now.Before(t.ExpiresAt)
}
