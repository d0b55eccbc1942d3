package app

import (
	"context"

	"review_notifier/internal/domain"
)

const (
	DefaultDeliveryLimit = 50
	MaxDeliveryLimit     = 200
)

type DeliveryService struct {
	history domain.DeliveryLog
}

func NewDeliveryService(h domain.DeliveryLog) *DeliveryService {
	return &DeliveryService{history: h}
}

// Recent lists deliveries newest first; a zero limit means the default.
func (s *DeliveryService) Recent(ctx context.Context, q domain.DeliveryQuery) ([]domain.Delivery, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultDeliveryLimit
	}
	if q.Limit > MaxDeliveryLimit {
		q.Limit = MaxDeliveryLimit
	}
	return s.history.ListDeliveries(ctx, q)
}
