package order

import (
	"time"

	"booth-kiosk/internal/cart"
)

type Line struct {
	ProductID string `json:"productId"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Order is fixed at checkout confirmation and never changes afterwards.
type Order struct {
	ID        string
	CreatedAt time.Time
	lines     []Line
}

func New(id string, lines []Line, createdAt time.Time) *Order {
	cp := make([]Line, len(lines))
	copy(cp, lines)
	return &Order{ID: id, CreatedAt: createdAt, lines: cp}
}

func (o *Order) Lines() []Line {
	out := make([]Line, len(o.lines))
	copy(out, o.lines)
	return out
}

func (o *Order) Total() int64 {
	var total int64
	for _, l := range o.lines {
		total += l.Price * int64(l.Quantity)
	}
	return total
}

func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.lines {
		n += l.Quantity
	}
	return n
}

// LinesFromCart converts cart items into order lines.
func LinesFromCart(c cart.Cart) []Line {
	items := c.Items()
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			ProductID: it.ProductID,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	return lines
}
