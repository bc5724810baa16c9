package middleware

import (
	"errors"
	"net/http"

	"doc-courier/internal/auth"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// ClaimsFromRequest extracts the authenticated claims placed by Auth.
func ClaimsFromRequest(r *http.Request) (*auth.Claims, error) {
	claims, ok := r.Context().Value(ClaimsContextKey).(*auth.Claims)
	if !ok {
		return nil, errors.New("claims not found in context")
	}
	return claims, nil
}
