// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidPeriod):
		Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrNoKitComponents):
		Problem(w, http.StatusUnprocessableEntity, "Kit Without Components", err.Error())
	case errors.Is(err, shared.ErrNoMatchingTier):
		Problem(w, http.StatusUnprocessableEntity, "Pricing Tier Missing", err.Error())
	case errors.Is(err, shared.ErrTransactionConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Conflict, Retry", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
