package credential

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Grant is the result of one token exchange.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Exchanger trades a service-account key for an access token.
type Exchanger interface {
	Exchange(ctx context.Context, cred ServiceCredential) (Grant, error)
}

// GoogleExchanger signs a JWT assertion with the service-account key and
// posts it to the Google OAuth2 token endpoint.
type GoogleExchanger struct {
	// TokenURL overrides the token endpoint from the key file when set.
	TokenURL   string
	HTTPClient *http.Client
}

func NewGoogleExchanger(tokenURL string, timeout time.Duration) *GoogleExchanger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleExchanger{
		TokenURL:   strings.TrimSpace(tokenURL),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (e *GoogleExchanger) Exchange(ctx context.Context, cred ServiceCredential) (Grant, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, err := google.JWTConfigFromJSON(cred.Raw, CloudPlatformScope)
	if err != nil {
		return Grant{}, fmt.Errorf("parse service account key: %w", err)
	}
	if e.TokenURL != "" {
		conf.TokenURL = e.TokenURL
	}
	if e.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.HTTPClient)
	}
	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return Grant{}, err
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return Grant{}, fmt.Errorf("token endpoint returned an empty access_token")
	}
	lifetime := DefaultTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry).Round(time.Second)
	}
	return Grant{AccessToken: tok.AccessToken, ExpiresIn: lifetime}, nil
}
