// Package server exposes the simulator over HTTP: health, status, metrics
// and the run API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"blackswan/internal/core"
	"blackswan/internal/pipeline"
	"blackswan/internal/report"
	"blackswan/internal/store"
	"blackswan/pkg/concurrency"
	apperrors "blackswan/pkg/errors"
	"blackswan/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes          = 4 << 20
	defaultLimiterIdleTTL = 10 * time.Minute
)

// Simulator runs a simulation request
type Simulator interface {
	Simulate(ctx context.Context, req pipeline.Request) (*report.RunReport, error)
}

// RunReader reads persisted runs
type RunReader interface {
	GetRun(ctx context.Context, id string) (*report.RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// PoolReporter exposes worker pool activity on /status
type PoolReporter interface {
	Stats() concurrency.PoolStats
}

// Options configures the API server
type Options struct {
	Port      int
	RateLimit float64 // requests per second per client IP; 0 disables limiting
	RateBurst int
	// LimiterIdleTTL drops a client's limiter after this long without
	// requests. Zero means ten minutes.
	LimiterIdleTTL time.Duration

	// Request size caps; 0 means unbounded. MaxPoints bounds
	// num_paths * (num_steps+1), the prices held in memory by one run.
	MaxPaths  int
	MaxSteps  int
	MaxPoints int64

	// DefaultPaths and DefaultSteps fill requests that leave them at zero
	DefaultPaths int
	DefaultSteps int

	Version string
}

// Server serves the HTTP API
type Server struct {
	opts     Options
	sim      Simulator
	runs     RunReader
	hm       core.IHealthMonitor
	pool     PoolReporter
	logger   core.ILogger
	gatherer prometheus.Gatherer

	limitersMu sync.Mutex
	limiters   map[string]*clientLimiter

	started    time.Time
	served     atomic.Int64
	lastRunMu  sync.RWMutex
	lastRunID  string
	listenAddr atomic.Value
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option customizes a Server
type Option func(*Server)

// WithRunReader enables the /v1/runs endpoints
func WithRunReader(r RunReader) Option {
	return func(s *Server) { s.runs = r }
}

// WithHealthMonitor reports component health on /health and /status
func WithHealthMonitor(hm core.IHealthMonitor) Option {
	return func(s *Server) { s.hm = hm }
}

// WithPool reports simulation worker pool stats on /status
func WithPool(p PoolReporter) Option {
	return func(s *Server) { s.pool = p }
}

// WithGatherer serves metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates the API server
func NewServer(opts Options, sim Simulator, logger core.ILogger, options ...Option) *Server {
	s := &Server{
		opts:     opts,
		sim:      sim,
		logger:   logger.WithField("component", "api_server"),
		gatherer: prometheus.DefaultGatherer,
		started:  time.Now(),
		limiters: make(map[string]*clientLimiter),
	}
	if s.opts.LimiterIdleTTL <= 0 {
		s.opts.LimiterIdleTTL = defaultLimiterIdleTTL
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /v1/simulations", s.rateLimited(http.HandlerFunc(s.handleSimulate)))
	mux.Handle("GET /v1/runs", s.rateLimited(http.HandlerFunc(s.handleListRuns)))
	mux.Handle("GET /v1/runs/{id}", s.rateLimited(http.HandlerFunc(s.handleGetRun)))
	return mux
}

// Addr returns the bound address once Run is listening
func (s *Server) Addr() string {
	if v, ok := s.listenAddr.Load().(string); ok {
		return v
	}
	return ""
}

// Run listens until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}
	s.listenAddr.Store(ln.Addr().String())

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	if s.opts.RateLimit > 0 {
		go s.sweepLimiters(ctx)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics := telemetry.GetGlobalMetrics()

	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
		"metrics": map[string]interface{}{
			"terminal_median":  metrics.GetTerminalMedian(),
			"loss_probability": metrics.GetLossProbability(),
		},
	}

	code := http.StatusOK
	if s.hm != nil {
		health["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			health["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.lastRunMu.RLock()
	lastRun := s.lastRunID
	s.lastRunMu.RUnlock()

	status := map[string]interface{}{
		"version":        s.opts.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"runs_served":    s.served.Load(),
		"last_run_id":    lastRun,
		"store_enabled":  s.runs != nil,
	}
	if s.hm != nil {
		status["components"] = s.hm.GetStatus()
	}
	if s.pool != nil {
		status["worker_pool"] = s.pool.Stats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}

	if req.NumPaths == 0 {
		req.NumPaths = s.opts.DefaultPaths
	}
	if req.NumSteps == 0 {
		req.NumSteps = s.opts.DefaultSteps
	}
	if err := s.checkSize(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.sim.Simulate(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.served.Add(1)
	s.lastRunMu.Lock()
	s.lastRunID = rep.ID
	s.lastRunMu.Unlock()

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) checkSize(req pipeline.Request) error {
	if s.opts.MaxPaths > 0 && req.NumPaths > s.opts.MaxPaths {
		return fmt.Errorf("%w: num_paths %d exceeds the limit of %d",
			apperrors.ErrInvalidInput, req.NumPaths, s.opts.MaxPaths)
	}
	if s.opts.MaxSteps > 0 && req.NumSteps > s.opts.MaxSteps {
		return fmt.Errorf("%w: num_steps %d exceeds the limit of %d",
			apperrors.ErrInvalidInput, req.NumSteps, s.opts.MaxSteps)
	}
	if s.opts.MaxPoints > 0 && req.NumPaths > 0 && req.NumSteps > 0 {
		points := int64(req.NumPaths) * (int64(req.NumSteps) + 1)
		if points > s.opts.MaxPoints {
			return fmt.Errorf("%w: %d paths of %d steps exceed the limit of %d prices per run",
				apperrors.ErrInvalidInput, req.NumPaths, req.NumSteps, s.opts.MaxPoints)
		}
	}
	return nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run store disabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit %q", apperrors.ErrInvalidInput, raw))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run store disabled"))
		return
	}
	rep, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// rateLimited applies a per client IP token bucket
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.opts.RateLimit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.getIPLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getIPLimiter returns or creates a rate limiter for the given IP
func (s *Server) getIPLimiter(ip string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	cl, ok := s.limiters[ip]
	if !ok {
		burst := s.opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)}
		s.limiters[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// pruneLimiters drops limiters not used since cutoff and returns how many
// remain
func (s *Server) pruneLimiters(cutoff time.Time) int {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	for ip, cl := range s.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(s.limiters, ip)
		}
	}
	return len(s.limiters)
}

func (s *Server) sweepLimiters(ctx context.Context) {
	ticker := time.NewTicker(s.opts.LimiterIdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			remaining := s.pruneLimiters(now.Add(-s.opts.LimiterIdleTTL))
			s.logger.Debug("Pruned idle client limiters", "remaining", remaining)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrInvalidConfiguration),
		errors.Is(err, apperrors.ErrInsufficientData),
		errors.Is(err, apperrors.ErrInvalidPercentile),
		errors.Is(err, apperrors.ErrEmptyDistribution):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrSymbolNotFound),
		errors.Is(err, apperrors.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrMalformedData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
