package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"github.com/intermernet/relayrace/internal/database"
)

var errDuplicateIdentification = errors.New("a runner with this identification already exists")

// searchLimit caps the kiosk's runner search.
const searchLimit = 25

type createRunnerPayload struct {
	Identification string `json:"identification"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	PhoneNumber    string `json:"phoneNumber"`
	FacultyID      *int64 `json:"facultyId"`
	GroupNumber    *int64 `json:"groupNumber"`
	TestTime       string `json:"testTime"`
	FirstYear      bool   `json:"firstYear"`
}

func optionalInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// handleCreateRunner registers a runner. Runners without an identification
// get a generated one so they can still be found and queued.
func (s *Server) handleCreateRunner(w http.ResponseWriter, r *http.Request) {
	var payload createRunnerPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	payload.FirstName = strings.TrimSpace(payload.FirstName)
	payload.LastName = strings.TrimSpace(payload.LastName)
	payload.Identification = strings.TrimSpace(payload.Identification)
	if payload.FirstName == "" || payload.LastName == "" {
		s.raceError(w, r, errInvalid("firstName and lastName are required"))
		return
	}
	if payload.Identification == "" {
		payload.Identification = ksuid.New().String()
	}

	var created *database.Runner
	err := s.store.Write(r.Context(), func(tx *sql.Tx) error {
		_, err := s.store.GetRunnerByIdentification(r.Context(), tx, payload.Identification)
		if err == nil {
			return errDuplicateIdentification
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		created, err = s.store.CreateRunner(r.Context(), tx, &database.Runner{
			Identification: payload.Identification,
			FirstName:      payload.FirstName,
			LastName:       payload.LastName,
			PhoneNumber:    strings.TrimSpace(payload.PhoneNumber),
			FacultyID:      optionalInt(payload.FacultyID),
			GroupNumber:    optionalInt(payload.GroupNumber),
			TestTime:       strings.TrimSpace(payload.TestTime),
			FirstYear:      payload.FirstYear,
			RegisteredAt:   s.now(),
		})
		return err
	})
	if errors.Is(err, errDuplicateIdentification) {
		s.errorJSON(w, err, http.StatusConflict, "AlreadyExists")
		return
	}
	if err != nil {
		s.raceError(w, r, err)
		return
	}

	log.Info().Int64("runner_id", created.ID).Str("name", created.FullName()).Msg("runner registered")
	s.writeJSON(w, http.StatusCreated, envelope{"runner": toRunnerResponse(created)})
}

func (s *Server) handleGetRunner(w http.ResponseWriter, r *http.Request) {
	runnerID, err := idParam(r, "runnerID")
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	runner, err := s.store.GetRunnerByID(r.Context(), s.store.DB(), runnerID)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"runner": toRunnerResponse(runner)})
}

// searchTerms accepts `terms` as a JSON array or as space separated words.
func searchTerms(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var terms []string
		if err := json.Unmarshal([]byte(raw), &terms); err == nil {
			return terms
		}
	}
	return strings.Fields(raw)
}

func (s *Server) handleSearchRunners(w http.ResponseWriter, r *http.Request) {
	terms := searchTerms(r.URL.Query().Get("terms"))
	runners, err := s.store.SearchRunners(r.Context(), s.store.DB(), terms, searchLimit)
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"runners": toRunnerSummaryList(runners)})
}

// handleImportRunners reads an xlsx workbook from the multipart field "file".
func (s *Server) handleImportRunners(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.raceError(w, r, errInvalid("an xlsx file is required in field \"file\""))
		return
	}
	defer file.Close()

	result, err := s.importer.Import(r.Context(), file)
	if err != nil {
		log.Warn().Err(err).Msg("runner import failed")
		s.writeJSON(w, http.StatusBadRequest, envelope{"success": false, "error": err.Error(), "code": "InvalidInput"})
		return
	}
	s.writeJSON(w, http.StatusOK, ImportResponse{Success: result.Failed == 0, Details: result})
}

// --- Groups & Faculties ---

type createGroupPayload struct {
	GroupNumber int64  `json:"groupNumber"`
	Name        string `json:"name"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context(), s.store.DB())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	list := make([]envelope, len(groups))
	for i, g := range groups {
		list[i] = envelope{"id": g.ID, "groupNumber": g.GroupNumber, "name": g.Name}
	}
	s.writeJSON(w, http.StatusOK, envelope{"groups": list})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var payload createGroupPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.GroupNumber <= 0 || payload.Name == "" {
		s.raceError(w, r, errInvalid("groupNumber and name are required"))
		return
	}

	var group *database.Group
	err := s.store.Write(r.Context(), func(tx *sql.Tx) error {
		var err error
		group, err = s.store.CreateGroup(r.Context(), tx, payload.GroupNumber, payload.Name)
		return err
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{"group": envelope{"id": group.ID, "groupNumber": group.GroupNumber, "name": group.Name}})
}

type createFacultyPayload struct {
	Name string `json:"name"`
}

func (s *Server) handleListFaculties(w http.ResponseWriter, r *http.Request) {
	faculties, err := s.store.ListFaculties(r.Context(), s.store.DB())
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	list := make([]envelope, len(faculties))
	for i, f := range faculties {
		list[i] = envelope{"id": f.ID, "name": f.Name}
	}
	s.writeJSON(w, http.StatusOK, envelope{"faculties": list})
}

func (s *Server) handleCreateFaculty(w http.ResponseWriter, r *http.Request) {
	var payload createFacultyPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.raceError(w, r, err)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		s.raceError(w, r, errInvalid("name is required"))
		return
	}

	var faculty *database.Faculty
	err := s.store.Write(r.Context(), func(tx *sql.Tx) error {
		var err error
		faculty, err = s.store.CreateFaculty(r.Context(), tx, payload.Name)
		return err
	})
	if err != nil {
		s.raceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{"faculty": envelope{"id": faculty.ID, "name": faculty.Name}})
}
