// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/ports/adapter"
	"podcast-subscription-backend/internal/domain/ports/repository"
	"podcast-subscription-backend/internal/infra/metrics"
)

const (
	notificationTypeExpired = "EXPIRED"
	environmentSandbox      = "Sandbox"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// ProcessAppleNotification handles one App Store server notification.
	// A nil return means the notification was accepted and must be
	// acknowledged with 200, even when it matched nothing.
	ProcessAppleNotification(ctx context.Context, raw []byte) error
}

type webhookUC struct {
	subs       repository.SubscriptionRepository
	forwarder  adapter.WebhookForwarder
	production bool
	log        *zerolog.Logger
}

func NewWebhookUseCase(subs repository.SubscriptionRepository, forwarder adapter.WebhookForwarder, production bool, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUseCase").Logger()
	return &webhookUC{subs: subs, forwarder: forwarder, production: production, log: &l}
}

// appleNotification is the outer envelope of an App Store server
// notification, decoded from the signedPayload JWS.
type appleNotification struct {
	NotificationType string `json:"notificationType"`
	Data             struct {
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	} `json:"data"`
}

func (u *webhookUC) ProcessAppleNotification(ctx context.Context, raw []byte) error {
	var body struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.SignedPayload == "" {
		return fmt.Errorf("%w: missing signedPayload", domain.ErrInvalidArgument)
	}

	// The JWS is only parsed structurally; the vendor signature is not
	// verified. Hardening item before exposing this endpoint publicly.
	payload, err := decodeJWSPayload(body.SignedPayload)
	if err != nil {
		return err
	}

	var note appleNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return fmt.Errorf("%w: malformed notification envelope", domain.ErrInvalidArgument)
	}
	metrics.IncWebhookNotification(note.NotificationType)

	// A sandbox notification landing on the production deployment belongs
	// to the sandbox peer; hand it over verbatim.
	if u.production && note.Data.Environment == environmentSandbox {
		u.log.Info().Str("type", note.NotificationType).Msg("forwarding sandbox notification")
		return u.forwarder.Forward(ctx, raw)
	}

	if note.NotificationType != notificationTypeExpired {
		u.log.Debug().Str("type", note.NotificationType).Msg("ignoring notification")
		return nil
	}

	txPayload, err := decodeJWSPayload(note.Data.SignedTransactionInfo)
	if err != nil {
		return err
	}
	var tx struct {
		OriginalTransactionID string `json:"originalTransactionId"`
	}
	if err := json.Unmarshal(txPayload, &tx); err != nil || tx.OriginalTransactionID == "" {
		return fmt.Errorf("%w: malformed transaction info", domain.ErrInvalidArgument)
	}

	return u.expire(ctx, tx.OriginalTransactionID)
}

func (u *webhookUC) expire(ctx context.Context, originalTransactionID string) error {
	matches, err := u.subs.FindByAppleOriginalTransactionID(ctx, originalTransactionID)
	if err != nil {
		return err
	}
	if len(matches) != 1 {
		u.log.Error().
			Int("matches", len(matches)).
			Str("original_transaction_id", originalTransactionID).
			Msg("CRITICAL: expected exactly one subscription for transaction")
	}

	terminated := 0
	now := time.Now().UTC()
	for _, rec := range matches {
		sub := rec.Subscription
		if !sub.Terminate(now, now) {
			continue
		}
		// Last-writer-wins on purpose: the vendor says the subscription is
		// over, a concurrent write must not keep it alive.
		if err := u.subs.Upsert(ctx, sub, ""); err != nil {
			u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("could not persist webhook termination")
			continue
		}
		terminated++
		u.log.Info().Str("subscription_id", sub.ID).Msg("subscription terminated by webhook")
	}
	if terminated > 0 {
		metrics.IncSubscriptionsTerminated("webhook", terminated)
	}
	return nil
}

// decodeJWSPayload returns the decoded middle segment of a three-part JWS.
// No signature verification happens here.
func decodeJWSPayload(jws string) ([]byte, error) {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token must have three segments", domain.ErrInvalidArgument)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: token payload is not base64url", domain.ErrInvalidArgument)
	}
	return payload, nil
}
