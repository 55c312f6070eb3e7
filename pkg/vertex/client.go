package vertex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lkarlslund/vertex-openai-proxy/pkg/version"
)

const (
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 16 << 20
)

var ErrTimeout = errors.New("upstream timed out")

// Client performs the upstream generateContent calls. It never retries.
type Client struct {
	timeout time.Duration
	unary   *http.Client
	stream  *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		timeout: timeout,
		unary:   &http.Client{Timeout: timeout, Transport: transport},
		// Streams are bounded per read instead of in total, see idleTimeoutBody.
		stream: &http.Client{Transport: transport},
	}
}

type Response struct {
	StatusCode int
	Body       []byte
}

func newRequest(ctx context.Context, rawURL, token string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

// Generate performs one non-streaming call and returns the upstream status
// and body whatever the status.
func (c *Client) Generate(ctx context.Context, rawURL, token string, body []byte) (Response, error) {
	req, err := newRequest(ctx, rawURL, token, body)
	if err != nil {
		return Response{}, err
	}
	resp, err := c.unary.Do(req)
	if err != nil {
		return Response{}, c.wrapTransportErr(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, c.wrapTransportErr(err)
	}
	return Response{StatusCode: resp.StatusCode, Body: b}, nil
}

// OpenStream starts a streaming call with alt=sse so the upstream frames its
// output as data: lines. The caller must close the returned body; every read
// fails with ErrTimeout once no data arrived for the client timeout.
func (c *Client) OpenStream(ctx context.Context, rawURL, token string, body []byte) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	q := u.Query()
	q.Set("alt", "sse")
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithCancelCause(ctx)
	req, err := newRequest(ctx, u.String(), token, body)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	timer := time.AfterFunc(c.timeout, func() { cancel(ErrTimeout) })
	resp, err := c.stream.Do(req)
	if err != nil {
		timer.Stop()
		cause := context.Cause(ctx)
		cancel(nil)
		if errors.Is(cause, ErrTimeout) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, c.wrapTransportErr(err)
	}
	timer.Reset(c.timeout)
	resp.Body = &idleTimeoutBody{
		ReadCloser: resp.Body,
		ctx:        ctx,
		timer:      timer,
		timeout:    c.timeout,
		cancel:     cancel,
	}
	return resp, nil
}

func (c *Client) wrapTransportErr(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
	}
	return err
}

type idleTimeoutBody struct {
	io.ReadCloser
	ctx     context.Context
	timer   *time.Timer
	timeout time.Duration
	cancel  context.CancelCauseFunc
	once    sync.Once
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && !errors.Is(err, io.EOF) && errors.Is(context.Cause(b.ctx), ErrTimeout) {
		return n, fmt.Errorf("%w after %s", ErrTimeout, b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	var err error
	b.once.Do(func() {
		b.timer.Stop()
		err = b.ReadCloser.Close()
		b.cancel(nil)
	})
	return err
}
