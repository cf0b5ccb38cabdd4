package auth

import (
	"context"
	"net/http"

	"github.com/meridian-pos/meridian-stock/internal/platform/httpx"
)

type contextKey struct{}

// ClientFromContext returns the authenticated client, if any.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	client, ok := ctx.Value(contextKey{}).(*Client)
	return client, ok
}

// RequireClient authenticates requests with HTTP Basic credentials against
// the API client store.
func RequireClient(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, secret, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="meridian-stock"`)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
				return
			}
			client, err := service.Authenticate(r.Context(), clientID, secret)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
