package adapter

import (
	"context"
	"time"

	"podcast-subscription-backend/internal/domain/model"
)

// AppleSubscriptionStatus is the state reported by the App Store Server API.
// cf. https://developer.apple.com/documentation/appstoreserverapi/status
type AppleSubscriptionStatus int

const (
	AppleSubscriptionActive       AppleSubscriptionStatus = 1
	AppleSubscriptionExpired      AppleSubscriptionStatus = 2
	AppleSubscriptionBillingRetry AppleSubscriptionStatus = 3
	AppleSubscriptionBillingGrace AppleSubscriptionStatus = 4
	AppleSubscriptionRevoked      AppleSubscriptionStatus = 5
)

// GoogleSubscription is the normalized Play subscription state. ExpiryTime is
// nil when the vendor omitted expiryTimeMillis.
type GoogleSubscription struct {
	ExpiryTime   *time.Time
	AutoRenewing bool
	CancelReason *int
	OrderID      string
}

// PurchaseGateway talks to the Apple and Google purchase-validation APIs.
//
// Implementations return typed errors so callers can tell "receipt is
// garbage" from "vendor is down" from "we're calling it wrong"; see
// internal/infra/iap. None of the calls retry internally.
type PurchaseGateway interface {
	// GetPurchase verifies an opaque client receipt and returns the
	// normalized purchase matching the declared product type. productID and
	// packageName may be empty for Apple; both are required for Google.
	GetPurchase(ctx context.Context, receipt, productID, packageName string, typ model.ProductType, sandbox bool, platform model.Platform) (model.Purchase, error)

	// GetAppleSubscriptionStatus looks up the live status of an Apple
	// subscription by its original transaction id.
	GetAppleSubscriptionStatus(ctx context.Context, originalTransactionID string, sandbox bool) (AppleSubscriptionStatus, error)

	// GetGoogleSubscription looks up the live state of a Play subscription.
	// The subscription id equals the product id.
	GetGoogleSubscription(ctx context.Context, token, subscriptionID, packageName string, sandbox bool) (*GoogleSubscription, error)
}
