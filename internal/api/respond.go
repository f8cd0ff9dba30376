package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// CartPath is where a client returns to after a failed checkout.
const CartPath = "/cart"

func respondCheckoutFailure(w http.ResponseWriter, f *checkout.Failure, status int) {
	respondJSON(w, status, map[string]string{"error": f.Error(), "redirect": CartPath})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes. Zero means the error
// is unexpected and its text must not reach the client.
func statusFor(err error) int {
	var failure *checkout.Failure
	if errors.As(err, &failure) {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			return http.StatusBadRequest
		case failure.Recoverable():
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}

	switch {
	case errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidStock),
		errors.Is(err, product.ErrStockOutOfRange),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, command.ErrNoStockValue),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrInvalidName),
		errors.Is(err, auth.ErrPasswordTooShort):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrOutOfStock),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, product.ErrProductInUse),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrOrderCompleted),
		errors.Is(err, order.ErrOrderNotShipped),
		errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, checkout.ErrMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrUserDeactivated):
		return http.StatusForbidden
	}
	return 0
}

// respondDomainError writes err with its mapped status. Checkout failures
// carry their own shopper-facing message and send the client back to the
// cart; unexpected errors are logged and reported generically.
func respondDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)

	var failure *checkout.Failure
	if errors.As(err, &failure) {
		if !failure.Recoverable() {
			logger.Error("checkout failed", zap.Error(err))
		}
		respondCheckoutFailure(w, failure, status)
		return
	}

	if status == 0 {
		logger.Error("request failed", zap.Error(err))
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	respondJSONError(w, shopperMessage(err), status)
}

// shopperMessage phrases cart stock errors the way the storefront shows
// them. Other errors are reported by their own text.
func shopperMessage(err error) string {
	var limit *command.StockLimitError
	switch {
	case errors.Is(err, command.ErrOutOfStock):
		return "This product is out of stock"
	case errors.As(err, &limit) && limit.Adding:
		return fmt.Sprintf("Only %d item(s) available in stock", limit.Available)
	case errors.As(err, &limit):
		return fmt.Sprintf("Only %d items available in stock", limit.Available)
	}
	return err.Error()
}
