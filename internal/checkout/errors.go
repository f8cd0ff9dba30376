package checkout

import (
	"errors"
	"fmt"
)

// Failure kinds. A *Failure wraps exactly one of these.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductMissing    = errors.New("product no longer available")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransaction       = errors.New("order transaction failed")
	ErrAddressUpdate     = errors.New("shipping address update failed")
)

// Failure describes why a checkout attempt did not produce an order. Its
// Error text is the message shown to the shopper.
type Failure struct {
	Kind        error
	ProductID   string
	ProductName string
	Available   int
	Err         error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case ErrEmptyCart:
		return "Your cart is empty."
	case ErrProductMissing:
		return fmt.Sprintf("Product %s is no longer available.", f.ProductName)
	case ErrInsufficientStock:
		return fmt.Sprintf("Insufficient stock for %s. Only %d available.", f.ProductName, f.Available)
	case ErrAddressUpdate:
		return "Your order was placed but the shipping address could not be saved to your profile."
	default:
		return "An error occurred while processing your order. Please try again."
	}
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Recoverable reports whether the shopper can fix the cart and retry.
func (f *Failure) Recoverable() bool {
	return f.Kind == ErrEmptyCart || f.Kind == ErrProductMissing || f.Kind == ErrInsufficientStock
}

func emptyCart() *Failure {
	return &Failure{Kind: ErrEmptyCart}
}

func productMissing(productID, name string) *Failure {
	return &Failure{Kind: ErrProductMissing, ProductID: productID, ProductName: name}
}

func insufficientStock(productID, name string, available int) *Failure {
	return &Failure{Kind: ErrInsufficientStock, ProductID: productID, ProductName: name, Available: available}
}

func transactionFailed(err error) *Failure {
	return &Failure{Kind: ErrTransaction, Err: err}
}
