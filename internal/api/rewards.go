package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type rewardPayload struct {
	Collected bool `json:"collected"`
}

// handleListRewards lists every runner with their completed laps, so staff
// can see who is owed which reward.
func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	runners, err := s.store.ListRunnerSummaries(r.Context(), s.store.DB())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"runners": toRunnerSummaryList(runners)})
}

func (s *Server) handleSetReward(w http.ResponseWriter, r *http.Request) {
	runnerID, err := idParam(r, "runnerID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	reward, err := strconv.Atoi(chi.URLParam(r, "reward"))
	if err != nil || reward < 1 || reward > 3 {
		s.raceError(w, r, errInvalid("reward must be 1, 2 or 3"))
		return
	}
	var payload rewardPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}

	var resp *RunnerResponse
	err = s.store.Write(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.SetRewardCollected(r.Context(), tx, runnerID, reward, payload.Collected); err != nil {
			return err
		}
		runner, err := s.store.GetRunnerByID(r.Context(), tx, runnerID)
		if err != nil {
			return err
		}
		resp = toRunnerResponse(runner)
		return nil
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"runner": resp})
}
