package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/auth"
)

type loginPayload struct {
	Password string `json:"password"`
	Station  string `json:"station"`
}

// handleLogin exchanges the shared staff password for a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.config.StaffAuthEnabled() {
		s.errorJSON(w, errors.New("staff authentication is not configured"), http.StatusNotFound, "NotFound")
		return
	}

	var payload loginPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}

	if err := auth.ComparePassword(payload.Password, s.config.StaffPasswordHash); err != nil {
		log.Warn().Str("station", payload.Station).Msg("failed staff login")
		s.errorJSON(w, errors.New("invalid password"), http.StatusUnauthorized, "Unauthorized")
		return
	}

	now := s.now()
	token, err := auth.IssueToken(s.config.JwtSecret, payload.Station, now, auth.DefaultTokenTTL)
	if err != nil {
		s.raceError(w, r, err)
		return
	}

	log.Info().Str("station", payload.Station).Msg("staff logged in")
	s.writeJSON(w, http.StatusOK, envelope{
		"token":     token,
		"expiresAt": now.Add(auth.DefaultTokenTTL).UTC().Format(time.RFC3339),
	})
}
