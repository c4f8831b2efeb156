package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
)

const (
	HeaderSecret    = "X-Webhook-Secret"
	HeaderSignature = "X-Webhook-Signature"

	// a rune takes at most 4 bytes, enough to fill the snippet
	maxBodyRead = 4 * webhook.MaxResponseSnippet
)

// StatusError is a response outside the 2xx range
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// Result describes one HTTP call; StatusCode is zero when no response arrived
type Result struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

/* Sender performs the single HTTP call shared by real deliveries and test invocations
 * Timeout, headers and signing live here and nowhere else
 */
type Sender struct {
	client    *http.Client
	userAgent string
}

// NewSender creates a sender identifying itself as "<product>-Webhook/1.0"
func NewSender(client *http.Client, product string) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	return &Sender{
		client:    client,
		userAgent: product + "-Webhook/1.0",
	}
}

// UserAgent returns the header value sent with deliveries
func (s *Sender) UserAgent(test bool) string {
	if test {
		return s.userAgent + " (Test)"
	}
	return s.userAgent
}

// Send POSTs body to the webhook URL, cancelled hard at the webhook's timeout
func (s *Sender) Send(ctx context.Context, wh webhook.Webhook, body []byte, test bool) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, wh.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}

	for name, value := range wh.Headers {
		req.Header.Set(name, value)
	}
	if secret, ok := wh.SigningSecret(); ok {
		req.Header.Set(HeaderSecret, secret)
		req.Header.Set(HeaderSignature, signature.Sign(secret, body))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.UserAgent(test))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Duration: time.Since(start)}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	// the snippet is informational, a short read is not a delivery failure
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	result := Result{
		StatusCode: resp.StatusCode,
		Body:       webhook.Snippet(raw),
		Duration:   time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{StatusCode: resp.StatusCode}
	}
	return result, nil
}
