// Package httpx renders engine responses. Errors go out as RFC7807
// problem documents typed with the engine's error vocabulary so
// clients can branch on the type URI instead of parsing detail text.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem type URIs for the engine's error taxonomy.
const (
	TypeValidation        = "https://meridian-pos.dev/problems/validation"
	TypeInsufficientStock = "https://meridian-pos.dev/problems/insufficient-stock"
	TypeInvalidState      = "https://meridian-pos.dev/problems/invalid-state"
	TypeNotFound          = "https://meridian-pos.dev/problems/not-found"
	TypeConflict          = "https://meridian-pos.dev/problems/conflict"
	TypeUnauthorized      = "https://meridian-pos.dev/problems/unauthorized"
	TypeInternal          = "https://meridian-pos.dev/problems/internal"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends a problem document typed from the status code alone.
// Handlers with a more specific error at hand use TypedProblem.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	TypedProblem(w, status, typeForStatus(status), title, detail)
}

// TypedProblem sends a problem document with an explicit type URI.
func TypedProblem(w http.ResponseWriter, status int, problemType, title, detail string) {
	JSON(w, status, ProblemDetail{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeConflict
	case http.StatusUnauthorized:
		return TypeUnauthorized
	default:
		return TypeInternal
	}
}

// DecodeJSON decodes the JSON request body into target.
func DecodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
