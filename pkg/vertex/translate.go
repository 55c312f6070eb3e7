package vertex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	methodGenerate       = "generateContent"
	methodStreamGenerate = "streamGenerateContent"
)

// Target identifies the upstream model. Every field comes from process
// configuration or the loaded credential, never from the inbound request.
type Target struct {
	// Endpoint overrides https://{region}-aiplatform.googleapis.com.
	Endpoint  string
	Region    string
	ProjectID string
	Model     string
}

func (t Target) endpoint() string {
	if e := strings.TrimRight(strings.TrimSpace(t.Endpoint), "/"); e != "" {
		return e
	}
	region := strings.TrimSpace(t.Region)
	if region == "" || region == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
}

// BaseURL is the model resource URL without the method suffix.
func (t Target) BaseURL() string {
	region := strings.TrimSpace(t.Region)
	if region == "" {
		region = "global"
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s",
		t.endpoint(),
		url.PathEscape(strings.TrimSpace(t.ProjectID)),
		url.PathEscape(region),
		url.PathEscape(strings.TrimSpace(t.Model)),
	)
}

// URL picks the streaming or non-streaming generate method.
func (t Target) URL(stream bool) string {
	if stream {
		return t.BaseURL() + ":" + methodStreamGenerate
	}
	return t.BaseURL() + ":" + methodGenerate
}

// BuildUpstreamRequest maps req onto a single user turn.
func BuildUpstreamRequest(req ChatRequest) UpstreamRequest {
	return UpstreamRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: req.LastContent()}},
		}},
		GenerationConfig: GenerationConfig{
			Temperature:     req.EffectiveTemperature(),
			MaxOutputTokens: req.EffectiveMaxTokens(),
		},
	}
}

// Translate returns the upstream URL and encoded body for req.
func Translate(t Target, req ChatRequest) (string, []byte, error) {
	body, err := json.Marshal(BuildUpstreamRequest(req))
	if err != nil {
		return "", nil, fmt.Errorf("encode upstream request: %w", err)
	}
	return t.URL(req.Stream), body, nil
}
