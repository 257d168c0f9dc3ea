package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jewelhouse/jewelhouse/internal/crypto"
)

var ErrSubscriptionNotFound = errors.New("push subscription not found")

// PushSubscriptionStore keeps one row per endpoint. The p256dh and auth keys
// pass through the sealer on the way in and out.
type PushSubscriptionStore struct {
	pool   *pgxpool.Pool
	sealer crypto.Sealer
}

func NewPushSubscriptionStore(pool *pgxpool.Pool, sealer crypto.Sealer) *PushSubscriptionStore {
	if sealer == nil {
		sealer, _ = crypto.NewSealer("")
	}
	return &PushSubscriptionStore{pool: pool, sealer: sealer}
}

// Upsert inserts the subscription or replaces keys and owner of the row that
// already holds the endpoint. The stored row is written back into sub.
func (s *PushSubscriptionStore) Upsert(ctx context.Context, sub *PushSubscription) error {
	if sub == nil {
		return fmt.Errorf("subscription is required")
	}

	p256dh, err := s.sealer.Seal(sub.P256dh)
	if err != nil {
		return fmt.Errorf("failed to seal p256dh: %w", err)
	}
	auth, err := s.sealer.Seal(sub.Auth)
	if err != nil {
		return fmt.Errorf("failed to seal auth: %w", err)
	}

	var owner pgtype.UUID
	if sub.UserID != nil {
		owner = pgtype.UUID{Bytes: *sub.UserID, Valid: true}
	}

	var createdAt, updatedAt pgtype.Timestamptz
	err = s.pool.QueryRow(ctx, `
		INSERT INTO push_subscriptions (id, endpoint, p256dh, auth, user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_id = EXCLUDED.user_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, uuid.New(), sub.Endpoint, p256dh, auth, owner).Scan(&sub.ID, &createdAt, &updatedAt)
	if err != nil {
		return err
	}

	sub.CreatedAt = createdAt.Time
	sub.UpdatedAt = updatedAt.Time
	return nil
}

// List returns every registered subscription with opened keys. Rows whose keys
// cannot be opened are skipped and reported in the returned error slice.
func (s *PushSubscriptionStore) List(ctx context.Context) ([]PushSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint, p256dh, auth, user_id, created_at, updated_at
		FROM push_subscriptions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []PushSubscription{}
	var openErrs []error
	for rows.Next() {
		var (
			sub       PushSubscription
			p256dh    string
			auth      string
			owner     pgtype.UUID
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &p256dh, &auth, &owner, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		if sub.P256dh, err = s.sealer.Open(p256dh); err != nil {
			openErrs = append(openErrs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if sub.Auth, err = s.sealer.Open(auth); err != nil {
			openErrs = append(openErrs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if owner.Valid {
			id := uuid.UUID(owner.Bytes)
			sub.UserID = &id
		}
		sub.CreatedAt = createdAt.Time
		sub.UpdatedAt = updatedAt.Time
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, errors.Join(openErrs...)
}

func (s *PushSubscriptionStore) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
