package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/logging"
)

// Error bodies whose exact wording is part of the API contract.
const (
	// errMissingEnv is returned when the server is missing the
	// configuration needed to serve the request at all.
	errMissingEnv = "Missing environment variables."
	// errNoAuthHeader is returned when the Authorization header is absent.
	// Deliberately a 500, not a 401: existing clients distinguish a
	// misconfigured session from a rejected credential by this shape.
	errNoAuthHeader = "No authorization header passed"
)

// jwtMiddleware returns an HTTP middleware that enforces Bearer JWT
// authentication on protected routes. The token must be an HS256 JWT signed
// with the server's secret.
//
// A request without an Authorization header receives 500 with the
// errNoAuthHeader body; a present but invalid token receives 401. The token
// value is never logged — only its presence/absence is recorded.
func (s *Server) jwtMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())
		setCORS(w)

		if s.cfg.JWTSecret == "" {
			log.Error("auth: DOCCHAT_JWT_SECRET is not set")
			writeError(w, http.StatusInternalServerError, errMissingEnv)
			return
		}

		if r.Header.Get("Authorization") == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			writeError(w, http.StatusInternalServerError, errNoAuthHeader)
			return
		}

		token := auth.BearerToken(r)
		if token == "" {
			log.Warn("auth: malformed Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat"`)
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}

		claims, err := auth.Verify(s.cfg.JWTSecret, token)
		if err != nil {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := logging.WithLogger(r.Context(), log.With(slog.String("subject", claims.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
