package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Owner identifies who a cart belongs to.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerSession
	OwnerUser
	OwnerAmbiguous
)

func (o Owner) String() string {
	switch o {
	case OwnerSession:
		return "session"
	case OwnerUser:
		return "user"
	case OwnerAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Cart is a collection of items keyed by either an anonymous session or a
// user account, never both.
type Cart struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

// CartItem is one product line. Quantity is positive in any stable state
// and ProductID is unique within its cart.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
}

// Owner reports which owner key is set.
func (c *Cart) Owner() Owner {
	switch {
	case c.SessionID != "" && c.UserID != "":
		return OwnerAmbiguous
	case c.SessionID != "":
		return OwnerSession
	case c.UserID != "":
		return OwnerUser
	default:
		return OwnerNone
	}
}

// Validate checks the single-owner invariant.
func (c *Cart) Validate() error {
	switch c.Owner() {
	case OwnerNone:
		return NewValidationError("cart", "has no owner")
	case OwnerAmbiguous:
		return NewValidationError("cart", "has both a session and a user owner")
	}
	return nil
}

// Clone returns a deep copy. Product snapshots share their image slice,
// which is treated as read-only.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// Item returns the item with the given id.
func (c *Cart) Item(itemID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return CartItem{}, false
}

// ItemByProduct returns the item holding the given product.
func (c *Cart) ItemByProduct(productID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}

// WithQuantity returns a copy with the item's quantity replaced.
// A quantity ≤ 0 removes the item, same as WithoutItem.
func (c *Cart) WithQuantity(itemID string, quantity int) *Cart {
	if quantity <= 0 {
		return c.WithoutItem(itemID)
	}
	cp := c.Clone()
	for i := range cp.Items {
		if cp.Items[i].ID == itemID {
			cp.Items[i].Quantity = quantity
		}
	}
	return cp
}

// WithoutItem returns a copy with the item dropped.
func (c *Cart) WithoutItem(itemID string) *Cart {
	cp := c.Clone()
	items := cp.Items[:0]
	for _, it := range cp.Items {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	cp.Items = items
	return cp
}

// Total is Σ(price × quantity). Zero for an empty or nil cart.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Count is the total number of units across all items.
func (c *Cart) Count() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// LineTotal returns price × quantity for this item.
func (i CartItem) LineTotal() decimal.Decimal {
	return LineTotal(i.Product.Price, i.Quantity)
}

// CartEnvelope is the {"cart": {...}} wire wrapper used by the cart service.
type CartEnvelope struct {
	Cart *Cart `json:"cart"`
}

// ItemEnvelope is the {"item": {...}} wire wrapper used by the cart service.
type ItemEnvelope struct {
	Item *CartItem `json:"item"`
}

// UserProfile is the account payload for guest→user conversion.
type UserProfile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Password  string `json:"password,omitempty"`
}
