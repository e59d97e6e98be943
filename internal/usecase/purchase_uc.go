// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
	"podcast-subscription-backend/internal/domain/ports/repository"
	"podcast-subscription-backend/internal/infra/iap"
	"podcast-subscription-backend/internal/infra/metrics"
)

// purchaseLockTTL bounds how long a crashed request can block a retry for the
// same vendor identity.
const purchaseLockTTL = 10 * time.Second

// Locker serializes check-then-insert per vendor purchase identity.
// Satisfied by the redis locker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

type CreateSubscriptionRequest struct {
	UserID      string
	OfficeID    string
	Receipt     string
	Platform    model.Platform
	ProductID   string // required for Google, cross-check for Apple
	PackageName string // required for Google
}

type PurchaseUseCase interface {
	// CreateSubscription verifies the receipt with the owning vendor and
	// creates a subscription unless an eligible one already holds the same
	// vendor purchase identity.
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*model.Subscription, error)
	// ListSubscriptions returns all subscriptions of the user.
	ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error)
}

type purchaseUC struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	gateway adapter.PurchaseGateway
	locks   Locker
	log     *zerolog.Logger
}

func NewPurchaseUseCase(users repository.UserRepository, subs repository.SubscriptionRepository, gateway adapter.PurchaseGateway, locks Locker, logger *zerolog.Logger) *purchaseUC {
	l := logger.With().Str("component", "PurchaseUseCase").Logger()
	return &purchaseUC{users: users, subs: subs, gateway: gateway, locks: locks, log: &l}
}

func (u *purchaseUC) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*model.Subscription, error) {
	user, err := u.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	purchase, err := u.gateway.GetPurchase(ctx, req.Receipt, req.ProductID, req.PackageName, model.ProductTypeSubscription, user.Test, req.Platform)
	if err != nil {
		metrics.IncReceiptVerification(string(req.Platform), "error")
		var appleErr *iap.AppleAPIError
		var googleErr *iap.GoogleAPIError
		if errors.As(err, &appleErr) || errors.As(err, &googleErr) {
			metrics.IncVendorAPIError(string(req.Platform))
		}
		return nil, err
	}
	metrics.IncReceiptVerification(string(req.Platform), "ok")

	identity, err := purchaseIdentity(purchase)
	if err != nil {
		return nil, err
	}

	// Two concurrent submissions of the same receipt contend on this key;
	// the loser is a duplicate.
	lockKey := "purchase:" + string(req.Platform) + ":" + identity
	lockToken, err := u.locks.TryLock(ctx, lockKey, purchaseLockTTL)
	if err != nil {
		metrics.IncDuplicatePurchase()
		return nil, domain.ErrDuplicatePurchase
	}
	defer func() {
		if err := u.locks.Unlock(ctx, lockKey, lockToken); err != nil {
			u.log.Warn().Err(err).Str("key", lockKey).Msg("could not release purchase lock")
		}
	}()

	existing, err := u.subs.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, sub := range existing {
		if !sub.EligibleAt(now) {
			continue
		}
		for _, p := range sub.Payments {
			if paymentMatchesPurchase(p, purchase) {
				metrics.IncDuplicatePurchase()
				return nil, domain.ErrDuplicatePurchase
			}
		}
	}

	payment, err := paymentFromPurchase(purchase, now)
	if err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		ID:       uuid.NewString(),
		OfficeID: req.OfficeID,
		UserID:   user.ID,
		Start:    now,
		Payments: model.Payments{payment},
		Created:  now,
		Modified: now,
	}
	if err := u.subs.Insert(ctx, sub); err != nil {
		return nil, err
	}

	metrics.IncSubscriptionCreated(string(req.Platform))
	u.log.Info().
		Str("user_id", user.ID).
		Str("subscription_id", sub.ID).
		Str("platform", string(req.Platform)).
		Msg("subscription created")
	return sub, nil
}

func (u *purchaseUC) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	if _, err := u.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return u.subs.ListByUser(ctx, userID)
}

// purchaseIdentity extracts the vendor deduplication key. Only subscription
// purchases can back a subscription.
func purchaseIdentity(p model.Purchase) (string, error) {
	switch v := p.(type) {
	case model.AppleSubscriptionPurchase:
		return v.OriginalTransactionID, nil
	case model.GoogleSubscriptionPurchase:
		return v.Token, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// paymentMatchesPurchase compares vendor identities. Matching never crosses
// vendors.
func paymentMatchesPurchase(payment model.Payment, purchase model.Purchase) bool {
	switch pay := payment.(type) {
	case *model.ApplePayment:
		if pur, ok := purchase.(model.AppleSubscriptionPurchase); ok {
			return pay.OriginalTransactionID == pur.OriginalTransactionID
		}
	case *model.GooglePayment:
		if pur, ok := purchase.(model.GoogleSubscriptionPurchase); ok {
			return pay.Token == pur.Token
		}
	}
	return false
}

func paymentFromPurchase(p model.Purchase, now time.Time) (model.Payment, error) {
	switch v := p.(type) {
	case model.AppleSubscriptionPurchase:
		return &model.ApplePayment{
			From:                  now,
			OriginalTransactionID: v.OriginalTransactionID,
			OriginalPurchaseDate:  now,
			ProductID:             v.ProductID,
			Modified:              now,
		}, nil
	case model.GoogleSubscriptionPurchase:
		return &model.GooglePayment{
			From:                 now,
			Token:                v.Token,
			PackageName:          v.PackageName,
			OriginalPurchaseDate: now,
			ProductID:            v.ProductID,
			Modified:             now,
		}, nil
	default:
		return nil, domain.ErrInvalidArgument
	}
}
