package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnknownPlatform = errors.New("unknown platform")
)

type ReviewSource interface {
	Platform() Platform
	// Fetch returns reviews newest first. since is a paging hint; sources may
	// return older reviews and the caller still applies the window.
	Fetch(ctx context.Context, since time.Time) ([]Review, error)
}

type Notifier interface {
	Notify(ctx context.Context, r Review) error
}

// Ledger remembers which reviews were already posted.
type Ledger interface {
	// Claim reports false when the review was claimed before.
	Claim(ctx context.Context, r Review) (bool, error)
	Release(ctx context.Context, r Review) error
}

type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	ListDeliveries(ctx context.Context, q DeliveryQuery) ([]Delivery, error)
}

type DeliveryQuery struct {
	Platform *Platform
	Limit    int
}
