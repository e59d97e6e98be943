// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
	"podcast-subscription-backend/internal/domain/ports/repository"
	"podcast-subscription-backend/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Run performs one reconciliation pass over all non-terminated
	// subscriptions and returns how many were terminated. Per-record
	// failures are logged and skipped; only listing the batch itself can
	// fail the pass.
	Run(ctx context.Context) (int, error)
}

type reconcileUC struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	gateway adapter.PurchaseGateway
	log     *zerolog.Logger
}

func NewReconcileUseCase(users repository.UserRepository, subs repository.SubscriptionRepository, gateway adapter.PurchaseGateway, logger *zerolog.Logger) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUseCase").Logger()
	return &reconcileUC{users: users, subs: subs, gateway: gateway, log: &l}
}

func (u *reconcileUC) Run(ctx context.Context) (int, error) {
	started := time.Now()
	records, err := u.subs.ListUnterminated(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	terminated := 0
	for _, rec := range records {
		if u.reconcileOne(ctx, rec) {
			terminated++
		}
	}

	if terminated > 0 {
		metrics.IncSubscriptionsTerminated("reconcile", terminated)
	}
	metrics.ObserveReconcilePass(time.Since(started).Seconds())
	u.log.Info().Int("checked", len(records)).Int("terminated", terminated).Msg("reconcile pass finished")
	return terminated, nil
}

func (u *reconcileUC) reconcileOne(ctx context.Context, rec repository.VersionedSubscription) bool {
	sub := rec.Subscription
	if sub.End != nil {
		// Already terminal; the end just lies in the future.
		return false
	}

	payment, ok := sub.LastPayment()
	if !ok {
		u.log.Error().Str("subscription_id", sub.ID).Msg("CRITICAL: subscription has no payments")
		return false
	}

	sandbox, err := u.sandboxFor(ctx, sub.UserID)
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Str("user_id", sub.UserID).Msg("CRITICAL: could not load subscription owner")
		return false
	}

	switch p := payment.(type) {
	case *model.ApplePayment:
		return u.reconcileApple(ctx, sub, rec.Etag, p, sandbox)
	case *model.GooglePayment:
		return u.reconcileGoogle(ctx, sub, rec.Etag, p, sandbox)
	default:
		return false
	}
}

func (u *reconcileUC) reconcileApple(ctx context.Context, sub *model.Subscription, etag string, p *model.ApplePayment, sandbox bool) bool {
	status, err := u.gateway.GetAppleSubscriptionStatus(ctx, p.OriginalTransactionID, sandbox)
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("apple status lookup failed")
		return false
	}
	if status != adapter.AppleSubscriptionExpired {
		return false
	}

	now := time.Now().UTC()
	return u.terminate(ctx, sub, etag, now, now)
}

func (u *reconcileUC) reconcileGoogle(ctx context.Context, sub *model.Subscription, etag string, p *model.GooglePayment, sandbox bool) bool {
	res, err := u.gateway.GetGoogleSubscription(ctx, p.Token, p.ProductID, p.PackageName, sandbox)
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("google status lookup failed")
		return false
	}
	if res.ExpiryTime == nil {
		return false
	}

	now := time.Now().UTC()
	if !res.ExpiryTime.Before(now) {
		return false
	}
	// End at the vendor-reported expiry, not at the time of the check.
	return u.terminate(ctx, sub, etag, res.ExpiryTime.UTC(), now)
}

func (u *reconcileUC) terminate(ctx context.Context, sub *model.Subscription, etag string, end, now time.Time) bool {
	if !sub.Terminate(end, now) {
		return false
	}
	if err := u.subs.Upsert(ctx, sub, etag); err != nil {
		if errors.Is(err, domain.ErrPreconditionFailed) {
			u.log.Warn().Str("subscription_id", sub.ID).Msg("stale etag, skipping; next pass will retry")
			return false
		}
		u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("could not persist termination")
		return false
	}
	u.log.Info().Str("subscription_id", sub.ID).Time("end", end).Msg("subscription terminated")
	return true
}

func (u *reconcileUC) sandboxFor(ctx context.Context, userID string) (bool, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Test, nil
}
