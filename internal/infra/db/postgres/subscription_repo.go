package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

// subscriptionRepo stores each subscription as a JSONB document plus a few
// extracted columns (user_id, end_at) used for filtering, and an etag column
// for optimistic concurrency. Every write rotates the etag.
type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Get(ctx context.Context, userID, id string) (*model.Subscription, string, error) {
	const q = `SELECT doc, etag FROM subscriptions WHERE id=$1 AND user_id=$2;`

	var raw []byte
	var etag string
	if err := r.pool.QueryRow(ctx, q, id, userID).Scan(&raw, &etag); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", domain.ErrOperationFailed
	}

	sub, err := decodeSubscription(raw)
	if err != nil {
		return nil, "", err
	}
	return sub, etag, nil
}

func (r *subscriptionRepo) Insert(ctx context.Context, sub *model.Subscription) error {
	const q = `INSERT INTO subscriptions (id, user_id, end_at, doc, etag) VALUES ($1,$2,$3,$4,$5);`

	raw, err := json.Marshal(sub)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = r.pool.Exec(ctx, q, sub.ID, sub.UserID, sub.End, raw, uuid.NewString())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) Upsert(ctx context.Context, sub *model.Subscription, etag string) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	if etag == "" {
		const q = `
INSERT INTO subscriptions (id, user_id, end_at, doc, etag) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET user_id=$2, end_at=$3, doc=$4, etag=$5;`
		if _, err := r.pool.Exec(ctx, q, sub.ID, sub.UserID, sub.End, raw, uuid.NewString()); err != nil {
			return domain.ErrOperationFailed
		}
		return nil
	}

	const q = `UPDATE subscriptions SET user_id=$2, end_at=$3, doc=$4, etag=$5 WHERE id=$1 AND etag=$6;`
	tag, err := r.pool.Exec(ctx, q, sub.ID, sub.UserID, sub.End, raw, uuid.NewString(), etag)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPreconditionFailed
	}
	return nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	const q = `SELECT doc FROM subscriptions WHERE user_id=$1 ORDER BY doc->>'created' ASC;`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.ErrOperationFailed
		}
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *subscriptionRepo) ListUnterminated(ctx context.Context, now time.Time) ([]repository.VersionedSubscription, error) {
	const q = `SELECT doc, etag FROM subscriptions WHERE end_at IS NULL OR end_at > $1 ORDER BY doc->>'created' ASC;`
	return r.queryVersioned(ctx, q, now)
}

func (r *subscriptionRepo) FindByAppleOriginalTransactionID(ctx context.Context, originalTransactionID string) ([]repository.VersionedSubscription, error) {
	// Containment against the payments array; served by the GIN index on doc.
	needle, err := json.Marshal([]map[string]string{{
		"type":                  model.ApplePaymentType,
		"originalTransactionId": originalTransactionID,
	}})
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}

	const q = `SELECT doc, etag FROM subscriptions WHERE doc->'payments' @> $1::jsonb;`
	return r.queryVersioned(ctx, q, needle)
}

func (r *subscriptionRepo) queryVersioned(ctx context.Context, q string, args ...any) ([]repository.VersionedSubscription, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []repository.VersionedSubscription
	for rows.Next() {
		var raw []byte
		var etag string
		if err := rows.Scan(&raw, &etag); err != nil {
			return nil, domain.ErrOperationFailed
		}
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, repository.VersionedSubscription{Subscription: sub, Etag: etag})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func decodeSubscription(raw []byte) (*model.Subscription, error) {
	var sub model.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return &sub, nil
}
