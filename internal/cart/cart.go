// Package cart holds the kiosk cart as an immutable snapshot. Every mutation
// returns a new Cart; lines are never changed in place, so a snapshot handed
// to the payment session stays valid while the user keeps shopping.
package cart

import "fmt"

type Cart struct {
	items []Item
}

// New builds a cart from lines, dropping any with a non-positive quantity.
func New(items ...Item) Cart {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return Cart{items: out}
}

// Add increments the line for p, or appends a new line with quantity 1.
func (c Cart) Add(p Product) Cart {
	items := c.Items()
	for i := range items {
		if items[i].ProductID == p.ID {
			items[i].Quantity++
			return Cart{items: items}
		}
	}

	items = append(items, Item{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  1,
	})
	return Cart{items: items}
}

// SetQuantity replaces the quantity of productID. n <= 0 removes the line.
// Unknown products leave the cart unchanged. No stock check is done here.
func (c Cart) SetQuantity(productID string, n int) Cart {
	items := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.ProductID != productID {
			items = append(items, it)
			continue
		}
		if n <= 0 {
			continue
		}
		it.Quantity = n
		items = append(items, it)
	}
	return Cart{items: items}
}

func (c Cart) Clear() Cart {
	return Cart{}
}

// Items returns a copy of the lines in insertion order.
func (c Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c Cart) Quantity(productID string) int {
	for _, it := range c.items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

func (c Cart) Total() int64 {
	var total int64
	for _, it := range c.items {
		total += it.Subtotal()
	}
	return total
}

func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c Cart) Empty() bool {
	return len(c.items) == 0
}

// CheckStock validates every line against externally supplied stock figures.
func CheckStock(c Cart, stock map[string]int) error {
	for _, it := range c.items {
		available, ok := stock[it.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStock, it.ProductID)
		}
		if it.Quantity > available {
			return fmt.Errorf("%w: %s wants %d, %d left", ErrInsufficientStock, it.ProductID, it.Quantity, available)
		}
	}
	return nil
}
