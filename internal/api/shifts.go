package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/shift"
)

type assignShiftsPayload struct {
	TimeSlot    string `json:"timeSlot"`
	RunnersList string `json:"runnersList"`
}

type checkedInPayload struct {
	CheckedIn bool `json:"checkedIn"`
}

// splitName turns "First Last Names" into its first word and the rest.
func splitName(line string) (first, last string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func (s *Server) handleListShiftCheckIns(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("timeSlot")
	if label != "" {
		label = shift.Normalize(label)
	}
	checkIns, err := s.store.ListShiftCheckIns(r.Context(), s.store.DB(), label)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"checkIns": toShiftCheckInList(checkIns)})
}

// handleAssignShifts assigns every runner named in runnersList, one per line,
// to the slot. Names that match no runner are reported back. Assigning a
// runner twice to the same slot is a no-op.
func (s *Server) handleAssignShifts(w http.ResponseWriter, r *http.Request) {
	var payload assignShiftsPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	slot, err := shift.Parse(payload.TimeSlot)
	if err != nil {
		s.raceError(w, r, errInvalid(err.Error()))
		return
	}

	var (
		added    []string
		notFound []string
	)
	ctx := r.Context()
	now := s.now()
	err = s.store.Write(ctx, func(tx *sql.Tx) error {
		added, notFound = []string{}, []string{}
		for _, line := range strings.Split(payload.RunnersList, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			first, last, ok := splitName(line)
			if !ok {
				notFound = append(notFound, line)
				continue
			}
			runner, err := s.store.FindRunnerByName(ctx, tx, first, last)
			if errors.Is(err, sql.ErrNoRows) {
				notFound = append(notFound, line)
				continue
			}
			if err != nil {
				return err
			}
			created, err := s.store.InsertShiftCheckIn(ctx, tx, runner.ID, slot.Label, slot.StartMinute, slot.EndMinute, now)
			if err != nil {
				return err
			}
			if created {
				added = append(added, runner.FullName())
			}
		}
		return nil
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}

	log.Info().Str("time_slot", slot.Label).Int("added", len(added)).Int("not_found", len(notFound)).Msg("shift runners assigned")
	s.writeJSON(w, http.StatusOK, envelope{"timeSlot": slot.Label, "added": added, "notFound": notFound})
}

func (s *Server) handleSetCheckedIn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "checkInID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	var payload checkedInPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	s.updateShiftCheckIn(w, r, id, func(tx *sql.Tx) error {
		return s.store.SetShiftCheckedIn(r.Context(), tx, id, payload.CheckedIn)
	})
}

func (s *Server) handleToggleCalled(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "checkInID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.updateShiftCheckIn(w, r, id, func(tx *sql.Tx) error {
		return s.store.ToggleShiftCalled(r.Context(), tx, id)
	})
}

// updateShiftCheckIn runs update and responds with the resulting check-in.
func (s *Server) updateShiftCheckIn(w http.ResponseWriter, r *http.Request, id int64, update func(tx *sql.Tx) error) {
	var checkIn ShiftCheckInResponse
	err := s.store.Write(r.Context(), func(tx *sql.Tx) error {
		if err := update(tx); err != nil {
			return err
		}
		c, err := s.store.GetShiftCheckIn(r.Context(), tx, id)
		if err != nil {
			return err
		}
		checkIn = toShiftCheckInResponse(c)
		return nil
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"checkIn": checkIn})
}

func (s *Server) handleDeleteShiftCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "checkInID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	err = s.store.Write(r.Context(), func(tx *sql.Tx) error {
		return s.store.DeleteShiftCheckIn(r.Context(), tx, id)
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
