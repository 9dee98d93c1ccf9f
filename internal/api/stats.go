package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/laptime"
)

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.race.StatisticsSnapshot(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toStatisticsResponse(st))
}

// handleAverageLapTime reports null when no lap finished within the window.
func (s *Server) handleAverageLapTime(w http.ResponseWriter, r *http.Request) {
	avg, err := s.race.AverageLapTime(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	if avg == nil {
		s.writeJSON(w, http.StatusOK, envelope{"averageTime": nil, "laps": 0})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"averageTime": laptime.Format(avg.AverageMs),
		"laps":        avg.Laps,
	})
}

type weatherPayload struct {
	Raining *bool `json:"raining"`
}

func (s *Server) handleGetWeather(w http.ResponseWriter, r *http.Request) {
	raining, err := s.race.Raining(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"raining": raining})
}

func (s *Server) handleSetWeather(w http.ResponseWriter, r *http.Request) {
	var payload weatherPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	if payload.Raining == nil {
		s.raceError(w, r, errInvalid("raining is required"))
		return
	}

	if err := s.race.SetRaining(r.Context(), *payload.Raining); err != nil {
		s.raceError(w, r, err)
		return
	}
	log.Info().Bool("raining", *payload.Raining).Str("station", stationFromContext(r.Context())).Msg("weather changed")
	s.writeJSON(w, http.StatusOK, envelope{"raining": *payload.Raining})
}
