// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/terralab/geoproc/internal/auth"
	"github.com/terralab/geoproc/internal/config"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/metrics"
)

// requireAuth gates the API routes according to the configured auth mode.
// The configuration is read per request so a hot reload takes effect
// without restarting the listener.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.holder.Current().Auth

		switch cfg.Mode {
		case config.AuthNone:
			next.ServeHTTP(w, r)
			return

		case config.AuthJWT:
			token := auth.ExtractToken(r)
			if token == "" {
				metrics.IncAuthFailure("missing")
				writeError(w, http.StatusUnauthorized, "missing credentials")
				return
			}
			subject, err := auth.NewJWTVerifier(cfg.JWTSecret).Verify(token)
			if err != nil {
				metrics.IncAuthFailure("invalid")
				logger := log.FromContext(r.Context())
				logger.Warn().
					Str("event", "auth.jwt.rejected").
					Msg("rejected request with invalid JWT")
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(log.ContextWithPrincipal(r.Context(), subject)))
			return

		default: // token mode, also the fail-closed fallback
			token := auth.ExtractToken(r)
			if token == "" {
				metrics.IncAuthFailure("missing")
				writeError(w, http.StatusUnauthorized, "missing credentials")
				return
			}
			if !auth.AuthorizeToken(token, cfg.Token) {
				metrics.IncAuthFailure("invalid")
				logger := log.FromContext(r.Context())
				logger.Warn().
					Str("event", "auth.token.rejected").
					Msg("rejected request with invalid token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(log.ContextWithPrincipal(r.Context(), "api-token")))
		}
	})
}
