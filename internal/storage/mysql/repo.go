package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"review_notifier/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// Repo is the MySQL-backed delivery log.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) RecordDelivery(ctx context.Context, d domain.Delivery) error {
	_, err := r.db.ExecContext(ctx, insertDeliverySQL,
		d.RunID,
		string(d.Platform),
		d.ReviewID,
		d.Rating,
		d.Author,
		d.ReviewedAt.UTC(),
		string(d.Status),
		valStr(d.Error),
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s/%s: %w", d.Platform, d.ReviewID, err)
	}
	return nil
}

func (r *Repo) ListDeliveries(ctx context.Context, q domain.DeliveryQuery) ([]domain.Delivery, error) {
	var platform any
	if q.Platform != nil {
		platform = string(*q.Platform)
	}
	rows, err := r.db.QueryContext(ctx, listDeliveriesSQL, platform, platform, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Delivery{}
	for rows.Next() {
		var (
			d        domain.Delivery
			platform string
			status   string
			errText  sql.NullString
		)
		if err := rows.Scan(
			&d.ID,
			&d.RunID,
			&platform,
			&d.ReviewID,
			&d.Rating,
			&d.Author,
			&d.ReviewedAt,
			&status,
			&errText,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		d.Platform = domain.Platform(platform)
		d.Status = domain.DeliveryStatus(status)
		if errText.Valid {
			s := errText.String
			d.Error = &s
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
