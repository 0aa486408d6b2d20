package order

import (
	"context"
	"fmt"
	"time"

	"booth-kiosk/internal/cart"
	"booth-kiosk/internal/logger"

	"go.uber.org/zap"
)

// Creator is the backend call that registers an order.
type Creator interface {
	CreateOrder(ctx context.Context, lines []Line) (string, error)
}

type Service interface {
	// Place confirms checkout of c and returns the created order.
	Place(ctx context.Context, c cart.Cart) (*Order, error)
}

type service struct {
	creator Creator
	now     func() time.Time
}

func NewService(creator Creator) Service {
	return &service{creator: creator, now: time.Now}
}

func (s *service) Place(ctx context.Context, c cart.Cart) (*Order, error) {
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	lines := LinesFromCart(c)
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, l.ProductID)
		}
	}

	log := logger.FromCtx(ctx).With(
		zap.Int("lines", len(lines)),
		zap.Int64("total", c.Total()),
	)

	id, err := s.creator.CreateOrder(ctx, lines)
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, fmt.Errorf("create order: %w", err)
	}
	if id == "" {
		return nil, ErrMissingOrderID
	}

	log.Info("order created", zap.String("order_id", id))
	return New(id, lines, s.now()), nil
}
