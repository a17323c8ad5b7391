package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/server/response"
	"github.com/agentstation/neowatch/pkg/logging"
)

// Auth admits only callers the gate authorizes. The principal is stored in
// the request context and added to the request logger.
func Auth(gate *auth.Gate, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := gate.Check(r)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Str("request_id", logging.RequestID(r.Context())).
					Msg("Authorization failed")
				response.ErrorFromType(w, err)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			ctx = logging.WithPrincipal(ctx, principal.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
