package repository

import (
	"context"
	"time"

	"podcast-subscription-backend/internal/domain/model"
)

// VersionedSubscription pairs a subscription document with the etag it was
// read at. Writers that must not clobber concurrent updates pass the etag
// back to Upsert.
type VersionedSubscription struct {
	Subscription *model.Subscription
	Etag         string
}

type SubscriptionRepository interface {
	// Get loads one subscription within the user's partition.
	Get(ctx context.Context, userID, id string) (*model.Subscription, string, error)

	// Insert creates a new subscription document. Returns
	// domain.ErrAlreadyExists on id collision.
	Insert(ctx context.Context, sub *model.Subscription) error

	// Upsert writes the document back. A non-empty etag makes the write
	// conditional: domain.ErrPreconditionFailed is returned when the stored
	// version moved since the read. An empty etag is last-writer-wins.
	Upsert(ctx context.Context, sub *model.Subscription, etag string) error

	// ListByUser returns all subscriptions in the user's partition.
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)

	// ListUnterminated returns, across all users, every subscription whose
	// end is unset or not yet in the past, with the etag of each.
	ListUnterminated(ctx context.Context, now time.Time) ([]VersionedSubscription, error)

	// FindByAppleOriginalTransactionID returns every subscription, across all
	// users, holding an Apple payment with the given original transaction id.
	FindByAppleOriginalTransactionID(ctx context.Context, originalTransactionID string) ([]VersionedSubscription, error)
}
