package checkout

import "errors"

var ErrQuantityTooLow = errors.New("checkout: quantity must be at least 1")

// Cart is owned by exactly one wizard instance; it is created when the
// wizard opens and discarded with it. Total is recomputed on every
// quantity change, never stored independently.
type Cart struct {
	ItemID    string `json:"item_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
}

func newCart(itemID string, unitPrice int64, currency string) Cart {
	return Cart{
		ItemID:    itemID,
		UnitPrice: unitPrice,
		Quantity:  1,
		Currency:  currency,
		Total:     unitPrice,
	}
}

func (c *Cart) setQuantity(qty int) error {
	if qty < 1 {
		return ErrQuantityTooLow
	}
	c.Quantity = qty
	c.Total = c.UnitPrice * int64(qty)
	return nil
}
