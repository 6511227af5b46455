// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/shared"
)

// Sentinel errors for the HTTP edge.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request body")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, InsufficientStockProblem{
			ProblemDetail: ProblemDetail{
				Type:   "about:blank#insufficient-stock",
				Title:  "Insufficient Stock",
				Status: http.StatusConflict,
				Detail: stockErr.Error(),
			},
			ItemID:    stockErr.ItemID,
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		})
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrTransaction) && db.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Transaction Aborted", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrTransaction):
		Problem(w, http.StatusInternalServerError, "Transaction Failed", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusFor returns the status RespondError would write for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInsufficientStock), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest), errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrTransaction) && db.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
