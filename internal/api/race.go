package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/race"
)

type enqueuePayload struct {
	RunnerID int64 `json:"runnerId"`
}

type placementPayload struct {
	EntryID int64 `json:"entryId"`
	Place   int64 `json:"place"`
}

func (s *Server) handlePeekQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", race.DefaultPeek)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	entries, err := s.race.PeekHead(r.Context(), limit)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"queue": toQueueEntryList(entries)})
}

// handleEnqueue is used by the registration kiosk. A missing or zero
// runnerId is rejected with MissingRunnerId.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var payload enqueuePayload
	if err := s.readJSON(w, r, &payload); err != nil && !errors.Is(err, errEmptyBody) {
		s.raceError(w, r, err)
		return
	}

	res, err := s.race.Enqueue(r.Context(), payload.RunnerID)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{
		"queueEntry": toQueueEntryResponse(res.Entry),
		"checkedIn":  toShiftCheckInList(res.CheckedIn),
	})
}

func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	entryID, err := idParam(r, "entryID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	runner, err := s.race.Remove(r.Context(), entryID)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"removedRunner": toRunnerResponse(runner)})
}

func (s *Server) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	var payload []placementPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	placements := make([]race.Placement, len(payload))
	for i, p := range payload {
		placements[i] = race.Placement{EntryID: p.EntryID, Place: p.Place}
	}

	if err := s.race.Reorder(r.Context(), placements); err != nil {
		s.raceError(w, r, err)
		return
	}
	entries, err := s.race.PeekHead(r.Context(), len(placements))
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"queue": toQueueEntryList(entries)})
}

func (s *Server) handleStartNext(w http.ResponseWriter, r *http.Request) {
	t, err := s.race.StartNext(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	log.Debug().Str("station", stationFromContext(r.Context())).Msg("start-next")
	s.writeJSON(w, http.StatusOK, toTransitionResponse(t))
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	t, err := s.race.SkipCurrent(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	log.Debug().Str("station", stationFromContext(r.Context())).Msg("skip")
	s.writeJSON(w, http.StatusOK, toTransitionResponse(t))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	t, err := s.race.StopCurrent(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	log.Debug().Str("station", stationFromContext(r.Context())).Msg("stop")
	s.writeJSON(w, http.StatusOK, toTransitionResponse(t))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	u, err := s.race.Undo(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	log.Debug().Str("station", stationFromContext(r.Context())).Str("operation", u.Operation).Msg("undo")
	s.writeJSON(w, http.StatusOK, toUndoResponse(u))
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	c, err := s.race.ControlsSnapshot(r.Context())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toControlsResponse(c))
}
