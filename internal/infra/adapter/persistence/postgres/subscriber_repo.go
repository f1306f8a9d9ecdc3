package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/repository"
)

type SubscriberRepo struct {
	db *sql.DB
}

func NewSubscriberRepo(db *sql.DB) repository.SubscriberRepository {
	return &SubscriberRepo{db: db}
}

const subscriberColumns = `id, email, topics, preferred_time, time_zone, is_active, is_verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(s rowScanner) (*entity.Subscriber, error) {
	var (
		sub    entity.Subscriber
		topics []byte
	)
	if err := s.Scan(
		&sub.ID, &sub.Email, &topics, &sub.PreferredTime, &sub.TimeZone,
		&sub.Active, &sub.Verified, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Topics = []string{}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &sub.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	return &sub, nil
}

func (repo *SubscriberRepo) ListEligible(ctx context.Context) ([]*entity.Subscriber, error) {
	const query = `
SELECT ` + subscriberColumns + `
FROM subscribers
WHERE is_active = TRUE AND is_verified = TRUE
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListEligible: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make([]*entity.Subscriber, 0, 64)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEligible: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEligible: %w", err)
	}
	return subs, nil
}

func (repo *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*entity.Subscriber, error) {
	normalized, err := entity.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}

	const query = `
SELECT ` + subscriberColumns + `
FROM subscribers
WHERE email = $1
LIMIT 1`
	sub, err := scanSubscriber(repo.db.QueryRowContext(ctx, query, normalized))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByEmail: %w", &entity.NotFoundError{Entity: "subscriber", Key: normalized})
	}
	if err != nil {
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}
	return sub, nil
}

func (repo *SubscriberRepo) Get(ctx context.Context, id int64) (*entity.Subscriber, error) {
	const query = `
SELECT ` + subscriberColumns + `
FROM subscribers
WHERE id = $1
LIMIT 1`
	sub, err := scanSubscriber(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get: %w", &entity.NotFoundError{Entity: "subscriber", Key: fmt.Sprint(id)})
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return sub, nil
}

// Create inserts a subscriber, or returns the existing row unchanged when the
// normalized email is already registered.
func (repo *SubscriberRepo) Create(ctx context.Context, sub *entity.Subscriber) (*entity.Subscriber, error) {
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	topics, err := json.Marshal(sub.Topics)
	if err != nil {
		return nil, fmt.Errorf("Create: marshal topics: %w", err)
	}

	const query = `
INSERT INTO subscribers (email, topics, preferred_time, time_zone, is_active, is_verified)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
RETURNING ` + subscriberColumns
	created, err := scanSubscriber(repo.db.QueryRowContext(ctx, query,
		sub.Email, topics, sub.PreferredTime, sub.TimeZone, sub.Active, sub.Verified,
	))
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	return created, nil
}

func (repo *SubscriberRepo) UpdatePreferences(
	ctx context.Context, email string, topics []string, preferredTime, timeZone string,
) (*entity.Subscriber, error) {
	sub := entity.Subscriber{Email: email, Topics: topics, PreferredTime: preferredTime, TimeZone: timeZone}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("UpdatePreferences: %w", err)
	}
	topicsJSON, err := json.Marshal(sub.Topics)
	if err != nil {
		return nil, fmt.Errorf("UpdatePreferences: marshal topics: %w", err)
	}

	const query = `
UPDATE subscribers SET
       topics         = $1,
       preferred_time = $2,
       time_zone      = $3,
       updated_at     = now()
WHERE email = $4
RETURNING ` + subscriberColumns
	updated, err := scanSubscriber(repo.db.QueryRowContext(ctx, query,
		topicsJSON, sub.PreferredTime, sub.TimeZone, sub.Email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("UpdatePreferences: %w", &entity.NotFoundError{Entity: "subscriber", Key: sub.Email})
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePreferences: %w", err)
	}
	return updated, nil
}

func (repo *SubscriberRepo) SetVerified(ctx context.Context, email string, verified bool) error {
	const query = `UPDATE subscribers SET is_verified = $1, updated_at = now() WHERE email = $2`
	return repo.execByEmail(ctx, "SetVerified", query, email, verified)
}

// SetActive pauses (false) or resumes (true) delivery.
func (repo *SubscriberRepo) SetActive(ctx context.Context, email string, active bool) error {
	const query = `UPDATE subscribers SET is_active = $1, updated_at = now() WHERE email = $2`
	return repo.execByEmail(ctx, "SetActive", query, email, active)
}

// Unsubscribe soft-deactivates the subscriber. Rows are kept for the ledger history.
func (repo *SubscriberRepo) Unsubscribe(ctx context.Context, email string) error {
	const query = `UPDATE subscribers SET is_active = $1, updated_at = now() WHERE email = $2`
	return repo.execByEmail(ctx, "Unsubscribe", query, email, false)
}

func (repo *SubscriberRepo) execByEmail(ctx context.Context, op, query, email string, flag bool) error {
	normalized, err := entity.NormalizeEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := repo.db.ExecContext(ctx, query, flag, normalized)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, &entity.NotFoundError{Entity: "subscriber", Key: normalized})
	}
	return nil
}
