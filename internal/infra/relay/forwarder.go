package relay

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"podcast-subscription-backend/internal/domain/ports/adapter"
)

// Ensure Forwarder implements adapter.WebhookForwarder
var _ adapter.WebhookForwarder = (*Forwarder)(nil)

// Forwarder relays a raw webhook body to a peer deployment. Used when a
// sandbox notification arrives at the production deployment.
type Forwarder struct {
	client *http.Client
	url    string
}

func NewForwarder(url string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Forward posts the payload verbatim. Anything but a 200 from the peer is a
// failure.
func (f *Forwarder) Forward(ctx context.Context, payload []byte) error {
	if f.url == "" {
		return fmt.Errorf("no forward target configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward webhook: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("forward target answered %d", res.StatusCode)
	}
	return nil
}
