package adapter

import "context"

// WebhookForwarder hands a vendor webhook, verbatim, to a peer deployment.
// Forward succeeds only when the peer acknowledges with HTTP 200.
type WebhookForwarder interface {
	Forward(ctx context.Context, payload []byte) error
}
