package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/config"
	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/importer"
	"github.com/intermernet/relayrace/internal/race"
	"github.com/intermernet/relayrace/internal/realtime"
)

// Server holds every dependency of the HTTP handlers.
type Server struct {
	config   *config.Config
	store    *database.Service
	race     *race.Controller
	broker   *realtime.Broker
	importer *importer.Importer
	now      func() time.Time
}

// NewServer wires the handlers to the store, the race controller and the
// broker that event streams subscribe to.
func NewServer(cfg *config.Config, store *database.Service, ctrl *race.Controller, broker *realtime.Broker) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		race:     ctrl,
		broker:   broker,
		importer: importer.New(store),
		now:      time.Now,
	}
}

// envelope wraps every JSON response, e.g. `envelope{"runner": r}`.
type envelope map[string]any

// writeJSON is a helper for sending JSON responses. It marshals data with
// tab indentation, copies any extra headers onto the response, sets the
// Content-Type and writes the status code. If marshalling fails nothing has
// been written yet, so a plain 500 is sent instead and the error is logged.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any, headers ...http.Header) {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		log.Error().Err(err).Msg("could not encode response")
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON is a helper for sending JSON error responses. The body is always
// `{"error": "..."}`; when a code is given it is added as "code" so clients
// can branch on a stable value (for example "QueueEmpty") instead of the
// human-readable message.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status int, code ...string) {
	body := envelope{"error": err.Error()}
	if len(code) > 0 {
		body["code"] = code[0]
	}
	s.writeJSON(w, status, body)
}

// raceError maps an error from the race core or the store onto a response.
// Validation and state conflicts are 400, missing records 404, anything
// else is a store failure.
func (s *Server) raceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case race.IsValidation(err), race.IsStateConflict(err):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("request rejected")
		s.errorJSON(w, err, http.StatusBadRequest, race.Code(err))
	case race.IsNotFound(err), errors.Is(err, sql.ErrNoRows), errors.Is(err, database.ErrNoRowsAffected):
		s.errorJSON(w, errors.New("not found"), http.StatusNotFound, race.Code(race.ErrNotFound))
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("store failure")
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError, race.Code(err))
	}
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// errInvalid describes a rejected field.
func errInvalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, race.ErrInvalidInput)
}

var errEmptyBody = fmt.Errorf("request body is empty: %w", race.ErrInvalidInput)

// readJSON decodes the request body into dst. Bodies are capped at
// maxBodyBytes. An empty body returns errEmptyBody and any other decoding
// failure an ErrInvalidInput, so handlers can pass the error straight to
// raceError and get a 400.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("could not decode JSON: %w", race.ErrInvalidInput)
	}
	return nil
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", name, race.ErrInvalidInput)
	}
	return id, nil
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", name, race.ErrInvalidInput)
	}
	return n, nil
}
