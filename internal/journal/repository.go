// Package journal stores terminal payment outcomes in Postgres.
package journal

import (
	"context"
	"database/sql"
	"time"

	"booth-kiosk/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	Record(ctx context.Context, e Entry) error
	ListByOrder(ctx context.Context, orderID string) ([]Entry, error)
}

type repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) Record(ctx context.Context, e Entry) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Journal"),
		zap.String("method", "Record"),
		zap.String("order_id", e.OrderID),
	)

	if e.OrderID == "" {
		return ErrMissingOrderID
	}
	if !e.Status.Terminal() {
		return ErrNonTerminal
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.now()
	}

	const q = `
		INSERT INTO payment_journal
			(id, order_id, request_id, method, status, amount, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrderID, e.RequestID,
		string(e.Method), string(e.Status),
		e.Amount, e.RecordedAt,
	)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return err
	}

	log.Info("payment outcome recorded", zap.String("status", string(e.Status)))
	return nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]Entry, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Journal"),
		zap.String("method", "ListByOrder"),
		zap.String("order_id", orderID),
	)

	const q = `
		SELECT id, order_id, request_id, method, status, amount, recorded_at
		FROM payment_journal
		WHERE order_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var (
			e              Entry
			method, status string
		)
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.RequestID,
			&method, &status,
			&e.Amount, &e.RecordedAt,
		); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		e.Method = paymentMethod(method)
		e.Status = paymentStatus(status)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration failed", zap.Error(err))
		return nil, err
	}

	return res, nil
}
