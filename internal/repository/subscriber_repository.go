package repository

import (
	"context"

	"daily-digest/internal/domain/entity"
)

// SubscriberRepository is the subscriber store.
// The dispatch pipeline only reads from it (ListEligible, GetByEmail); the
// remaining methods back subscription lifecycle actions such as unsubscribe.
type SubscriberRepository interface {
	ListEligible(ctx context.Context) ([]*entity.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*entity.Subscriber, error)
	Get(ctx context.Context, id int64) (*entity.Subscriber, error)
	Create(ctx context.Context, sub *entity.Subscriber) (*entity.Subscriber, error)
	UpdatePreferences(ctx context.Context, email string, topics []string, preferredTime, timeZone string) (*entity.Subscriber, error)
	SetVerified(ctx context.Context, email string, verified bool) error
	SetActive(ctx context.Context, email string, active bool) error
	Unsubscribe(ctx context.Context, email string) error
}
