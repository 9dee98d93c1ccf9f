package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes returns the complete HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up all the API endpoints and middleware for the application.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", s.config.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Post("/auth/login", s.handleLogin)

		// Kiosk and dashboard routes.
		r.Get("/queue", s.handlePeekQueue)
		r.Post("/queue", s.handleEnqueue)
		r.Get("/race/controls", s.handleControls)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/statistics/average-lap-time", s.handleAverageLapTime)
		r.Get("/weather", s.handleGetWeather)
		r.Get("/events", s.handleSSE)
		r.Get("/events/ws", s.handleWebSocket)

		r.Get("/runners/search", s.handleSearchRunners)
		r.Get("/runners/{runnerID}", s.handleGetRunner)
		r.Get("/groups", s.handleListGroups)
		r.Get("/faculties", s.handleListFaculties)
		r.Get("/rewards", s.handleListRewards)
		r.Get("/shift-checkins", s.handleListShiftCheckIns)

		// --- Staff Routes ---
		// Open when staff authentication is not configured.
		r.Group(func(r chi.Router) {
			r.Use(s.staffMiddleware)

			r.Delete("/queue/{entryID}", s.handleRemoveFromQueue)
			r.Put("/queue/order", s.handleReorderQueue)

			r.Post("/race/start-next", s.handleStartNext)
			r.Post("/race/skip", s.handleSkip)
			r.Post("/race/stop", s.handleStop)
			r.Post("/race/undo", s.handleUndo)
			r.Put("/weather", s.handleSetWeather)

			r.Post("/runners", s.handleCreateRunner)
			r.Post("/runners/import", s.handleImportRunners)
			r.Post("/groups", s.handleCreateGroup)
			r.Post("/faculties", s.handleCreateFaculty)
			r.Put("/rewards/{runnerID}/{reward}", s.handleSetReward)

			r.Post("/shift-checkins", s.handleAssignShifts)
			r.Put("/shift-checkins/{checkInID}/checked-in", s.handleSetCheckedIn)
			r.Post("/shift-checkins/{checkInID}/toggle-called", s.handleToggleCalled)
			r.Delete("/shift-checkins/{checkInID}", s.handleDeleteShiftCheckIn)
		})
	})
}
