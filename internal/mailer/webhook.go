package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

// WebhookTransport hands messages to an HTTP mail relay.
// The URL is injected from config so tests can point to a local server.
type WebhookTransport struct {
	url        string
	httpClient *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message and accepts any 2xx answer.
func (t *WebhookTransport) Send(ctx context.Context, recipients []string, subject, body string) error {
	payload, err := json.Marshal(Message{To: recipients, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("%w: marshal message: %v", domain.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected relay status: %d", domain.ErrTransport, resp.StatusCode)
	}
	return nil
}

var _ Transport = (*WebhookTransport)(nil)
