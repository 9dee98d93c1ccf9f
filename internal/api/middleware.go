package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/auth"
)

type contextKey string

const stationContextKey = contextKey("station")

// bearerToken extracts the token from the Authorization header, falling back
// to the `token` query parameter for EventSource and WebSocket clients that
// cannot set headers.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// staffMiddleware requires a valid staff token when staff authentication is
// configured, and lets every request through otherwise.
func (s *Server) staffMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.StaffAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			s.errorJSON(w, errors.New("authorization token is required"), http.StatusUnauthorized, "Unauthorized")
			return
		}
		claims, err := auth.ParseToken(tokenString, s.config.JwtSecret)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected staff token")
			s.errorJSON(w, errors.New("invalid or expired token"), http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), stationContextKey, claims.Station)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// stationFromContext names the staff station behind a request, if known.
func stationFromContext(ctx context.Context) string {
	station, _ := ctx.Value(stationContextKey).(string)
	return station
}
