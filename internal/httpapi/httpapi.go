// Package httpapi exposes the daemon's read/control surface over HTTP:
// sensor readings and trends, capture history as CSV, and display/master
// enable-disable toggles.
package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"heliograph/internal/display"
	"heliograph/internal/logging"
	"heliograph/internal/recorder"
	"heliograph/internal/scheduler"
	"heliograph/internal/sensors"
)

// Server wires the recorder, display controller, and scheduler behind an
// HTTP router.
type Server struct {
	log       zerolog.Logger
	ctx       context.Context
	recorder  *recorder.Recorder
	display   *display.Controller
	scheduler *scheduler.Scheduler
	srv       *http.Server
}

// New builds a Server listening on addr (e.g. ":80"). Handlers are wired
// but the server does not start listening until Start is called. ctx is
// the daemon's long-lived root context: the display/master POST handlers
// pass it (not the triggering request's context) to Enable/Start so the
// background loops they spawn outlive the HTTP request that started them.
func New(ctx context.Context, addr string, rec *recorder.Recorder, disp *display.Controller, sched *scheduler.Scheduler) *Server {
	s := &Server{
		log:       logging.New("httpapi"),
		ctx:       ctx,
		recorder:  rec,
		display:   disp,
		scheduler: sched,
	}

	r := chi.NewRouter()
	r.Use(requestIDLogging(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/api/external", s.handleLast(sensors.External))
	r.Get("/api/internal", s.handleLast(sensors.Internal))
	r.Get("/api/external/trend", s.handleTrend(sensors.External))
	r.Get("/api/internal/trend", s.handleTrend(sensors.Internal))
	r.Get("/api/external/history", s.handleHistory(sensors.External))
	r.Get("/api/internal/history", s.handleHistory(sensors.Internal))

	r.Get("/api/display", s.handleDisplayGet)
	r.Post("/api/display", s.handleDisplayPost)
	r.Get("/api/master", s.handleMasterGet)
	r.Post("/api/master", s.handleMasterPost)

	s.srv = &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. Errors after shutdown
// (http.ErrServerClosed) are not reported.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
}

// Stop closes the HTTP server immediately, dropping any active
// connections.
func (s *Server) Stop() error {
	return s.srv.Close()
}

func requestIDLogging(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set("X-Request-ID", id)
			log.Info().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Success bool   `json:"_success"`
	What    string `json:"what"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if r.URL.Query().Get("pretty") == "true" {
		enc.SetIndent("", "    ")
	}
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, what string) {
	writeJSON(w, r, status, errorBody{Success: false, What: what})
}

func (s *Server) handleLast(loc sensors.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, ok := s.recorder.Last(r.Context())
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "no measurement available")
			return
		}
		m := measurementFor(last, loc)
		if m == nil {
			writeError(w, r, http.StatusInternalServerError, loc.String()+" sensor failed on the latest sample")
			return
		}
		writeJSON(w, r, http.StatusOK, m)
	}
}

func (s *Server) handleTrend(loc sensors.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interval := 60
		if v := r.URL.Query().Get("minutes"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				interval = n
			}
		}
		trend, ok := s.recorder.Trend(r.Context(), interval)
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "no trend available")
			return
		}
		m := measurementFor(trend, loc)
		if m == nil {
			writeJSON(w, r, http.StatusOK, sensors.Measurement{})
			return
		}
		writeJSON(w, r, http.StatusOK, m)
	}
}

func measurementFor(rec recorder.Record, loc sensors.Location) *sensors.Measurement {
	if loc == sensors.External {
		return rec.External
	}
	return rec.Internal
}

func (s *Server) handleHistory(loc sensors.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 60
		if v := r.URL.Query().Get("count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				count = n
			}
		}
		fields := []string{"temperature", "humidity", "pressure"}
		if v := r.URL.Query().Get("fields"); v != "" {
			fields = strings.Split(v, ",")
		}

		history := s.recorder.HistorySnapshot()
		if count < len(history) {
			history = history[len(history)-count:]
		}

		w.Header().Set("Content-Type", "text/csv")
		cw := csv.NewWriter(w)
		header := append([]string{"timestamp"}, fields...)
		cw.Write(header)
		for _, rec := range history {
			m := measurementFor(rec, loc)
			row := []string{rec.Timestamp.UTC().Format(time.RFC3339)}
			for _, f := range fields {
				row = append(row, fieldValue(m, f))
			}
			cw.Write(row)
		}
		cw.Flush()
	}
}

func fieldValue(m *sensors.Measurement, field string) string {
	if m == nil {
		return ""
	}
	switch field {
	case "temperature":
		return strconv.FormatFloat(m.BMP280.Temperature, 'f', 2, 64)
	case "humidity":
		return strconv.FormatFloat(m.AHT20.Humidity, 'f', 2, 64)
	case "pressure":
		return strconv.FormatFloat(m.BMP280.Pressure, 'f', 2, 64)
	default:
		return ""
	}
}

func (s *Server) handleDisplayGet(w http.ResponseWriter, r *http.Request) {
	if s.display == nil {
		writeError(w, r, http.StatusServiceUnavailable, "display not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"enabled": s.display.Enabled()})
}

func (s *Server) handleDisplayPost(w http.ResponseWriter, r *http.Request) {
	if s.display == nil {
		writeError(w, r, http.StatusServiceUnavailable, "display not configured")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Enabled {
		s.display.Enable(s.ctx)
	} else {
		s.display.Disable()
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"enabled": s.display.Enabled()})
}

func (s *Server) handleMasterGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"started": s.scheduler.Started()})
}

func (s *Server) handleMasterPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Started bool `json:"started"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Started {
		if err := s.scheduler.Start(s.ctx); err != nil {
			writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		s.scheduler.Stop()
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"started": s.scheduler.Started()})
}
