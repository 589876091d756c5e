package cart

import "fmt"

// Reason explains why a mutation was rejected
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonExceedsStock    Reason = "exceeds_stock"
	ReasonInvalidQuantity Reason = "invalid_quantity"
	ReasonInvalidProduct  Reason = "invalid_product"
	ReasonNotFound        Reason = "not_found"
)

// Result is returned by every cart mutation. A rejected mutation leaves
// the cart unchanged.
type Result struct {
	OK      bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	// Removed counts the lines dropped by RemoveItems
	Removed int `json:"removed,omitempty"`
}

func ok() Result {
	return Result{OK: true}
}

func rejected(reason Reason, format string, args ...any) Result {
	return Result{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
