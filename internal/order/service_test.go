package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"booth-kiosk/internal/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockCreator struct {
	mock.Mock
}

func (m *MockCreator) CreateOrder(ctx context.Context, lines []Line) (string, error) {
	args := m.Called(ctx, lines)
	return args.String(0), args.Error(1)
}

func sampleCart() cart.Cart {
	return cart.Cart{}.
		Add(cart.Product{ID: "p1", Price: 1000}).
		SetQuantity("p1", 2).
		Add(cart.Product{ID: "p2", Price: 500}).
		SetQuantity("p2", 3)
}

func TestService_Place(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		creator := new(MockCreator)
		svc := NewService(creator)

		wantLines := []Line{
			{ProductID: "p1", Price: 1000, Quantity: 2},
			{ProductID: "p2", Price: 500, Quantity: 3},
		}
		creator.On("CreateOrder", ctx, wantLines).Return("ord-1", nil)

		o, err := svc.Place(ctx, sampleCart())
		require.NoError(t, err)

		assert.Equal(t, "ord-1", o.ID)
		assert.Equal(t, wantLines, o.Lines())
		assert.Equal(t, int64(3500), o.Total())
		assert.Equal(t, 5, o.ItemCount())
		assert.False(t, o.CreatedAt.IsZero())
		creator.AssertExpectations(t)
	})

	t.Run("EmptyCart", func(t *testing.T) {
		creator := new(MockCreator)
		svc := NewService(creator)

		_, err := svc.Place(ctx, cart.Cart{})
		assert.ErrorIs(t, err, ErrEmptyCart)
		creator.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	})

	t.Run("BackendError", func(t *testing.T) {
		creator := new(MockCreator)
		svc := NewService(creator)
		backendErr := errors.New("boom")
		creator.On("CreateOrder", ctx, mock.Anything).Return("", backendErr)

		_, err := svc.Place(ctx, sampleCart())
		assert.ErrorIs(t, err, backendErr)
	})

	t.Run("MissingID", func(t *testing.T) {
		creator := new(MockCreator)
		svc := NewService(creator)
		creator.On("CreateOrder", ctx, mock.Anything).Return("", nil)

		_, err := svc.Place(ctx, sampleCart())
		assert.ErrorIs(t, err, ErrMissingOrderID)
	})
}

func TestOrder_LinesAreCopied(t *testing.T) {
	lines := []Line{{ProductID: "p1", Price: 100, Quantity: 1}}
	o := New("ord", lines, time.Now())

	lines[0].Quantity = 50
	assert.Equal(t, 1, o.Lines()[0].Quantity)

	got := o.Lines()
	got[0].Quantity = 70
	assert.Equal(t, int64(100), o.Total())
}
