package cart

// Product is the catalogue entry a kiosk user taps to add to the cart.
type Product struct {
	ID    string
	Name  string
	Price int64
}

// Item is one cart line.
type Item struct {
	ProductID string
	Name      string
	Price     int64
	Quantity  int
}

// Subtotal is price × quantity for the line.
func (i Item) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}
