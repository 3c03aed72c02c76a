package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"upgrade-alerts/internal/metrics"
	"upgrade-alerts/internal/upgrade"
	"upgrade-alerts/internal/version"
)

// UpgradeSource serves tracked upgrade snapshots.
type UpgradeSource interface {
	Snapshot() []upgrade.Upgrade
}

// SubscriptionSource serves per-recipient subscriptions.
type SubscriptionSource interface {
	Networks(recipient int64) []string
	Len() int
}

// Options tune the HTTP listener.
type Options struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes health, metrics and read-only status endpoints.
type Server struct {
	opts     Options
	upgrades UpgradeSource
	subs     SubscriptionSource
	metrics  *metrics.Metrics
	router   *mux.Router
	started  time.Time
	now      func() time.Time
	logger   zerolog.Logger
}

// New builds the router. m may be nil, in which case /metrics is not served.
func New(opts Options, upgrades UpgradeSource, subs SubscriptionSource, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		opts:     opts,
		upgrades: upgrades,
		subs:     subs,
		metrics:  m,
		started:  time.Now().UTC(),
		now:      time.Now,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/upgrades", s.listUpgradesHandler).Methods(http.MethodGet)
	api.HandleFunc("/upgrades/{network}", s.getUpgradeHandler).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions/{id}", s.subscriptionsHandler).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("stopping http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// upgradeView shadows the embedded estimated_time so an unknown time encodes as null.
type upgradeView struct {
	upgrade.Upgrade
	EstimatedTime *time.Time `json:"estimated_time"`
	HoursUntil    *float64   `json:"hours_until,omitempty"`
}

func (s *Server) view(u upgrade.Upgrade, now time.Time) upgradeView {
	v := upgradeView{Upgrade: u}
	if h, ok := u.HoursUntil(now); ok {
		at := u.EstimatedTime.UTC()
		v.EstimatedTime = &at
		v.HoursUntil = &h
	}
	return v
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"version":       version.Version,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"tracked":       len(s.upgrades.Snapshot()),
		"subscriptions": s.subs.Len(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listUpgradesHandler(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	snapshot := s.upgrades.Snapshot()
	out := make([]upgradeView, 0, len(snapshot))
	for _, u := range snapshot {
		out = append(out, s.view(u, now))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	network := upgrade.NormalizeNetwork(mux.Vars(r)["network"])
	for _, u := range s.upgrades.Snapshot() {
		if u.Network == network {
			s.writeJSON(w, http.StatusOK, s.view(u, s.now()))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "upgrade not tracked")
}

func (s *Server) subscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid recipient id")
		return
	}
	networks := s.subs.Networks(id)
	if networks == nil {
		networks = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"recipient": id, "networks": networks})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
		s.logger.Debug().Str("method", r.Method).Str("route", route).Int("status", rec.status).
			Dur("duration", time.Since(start)).Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encode json response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message, "status": status})
}
