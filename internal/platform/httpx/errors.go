package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// RespondError maps engine errors to typed problem documents. The two
// 409 families keep distinct type URIs so clients can tell a stock
// shortage apart from a workflow state clash.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		TypedProblem(w, http.StatusBadRequest, TypeValidation, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		TypedProblem(w, http.StatusConflict, TypeInsufficientStock, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrInvalidStateTransition):
		TypedProblem(w, http.StatusConflict, TypeInvalidState, "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		TypedProblem(w, http.StatusNotFound, TypeNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		TypedProblem(w, http.StatusConflict, TypeConflict, "Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidCredentials):
		TypedProblem(w, http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", "invalid credentials")
	default:
		TypedProblem(w, http.StatusInternalServerError, TypeInternal, "Internal Error", "")
	}
}
