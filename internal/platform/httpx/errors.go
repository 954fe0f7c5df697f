// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrOverAllocation):
		Problem(w, http.StatusUnprocessableEntity, "Over Allocation", err.Error())
	case errors.Is(err, shared.ErrModificationNotAllowed):
		Problem(w, http.StatusUnprocessableEntity, "Modification Not Allowed", err.Error())
	case errors.Is(err, shared.ErrDeletionBlocked):
		Problem(w, http.StatusUnprocessableEntity, "Deletion Blocked", err.Error())
	case errors.Is(err, shared.ErrBlockedCounterparty):
		Problem(w, http.StatusForbidden, "Counterparty Blocked", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
