// Package api exposes the reward engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/farm"
	"stagefarm/internal/observability"
)

// CallerHeader carries the acting account of a request.
const CallerHeader = "X-Caller"

// Options contains the collaborators of a Server.
type Options struct {
	Engine *farm.Engine
	Gate   access.Gate // checks the clock capability
	// Clock is set only when the engine runs on a manual clock; it enables PUT /v1/admin/clock.
	Clock             *clock.ManualClock
	Metrics           *observability.Metrics // optional
	PrimaryDecimals   int32
	SecondaryDecimals int32
	Logger            *zap.Logger
}

// Server serves the HTTP API.
type Server struct {
	engine   *farm.Engine
	gate     access.Gate
	clock    *clock.ManualClock
	metrics  *observability.Metrics
	decimals [2]int32
	logger   *zap.Logger
}

// NewServer creates a new Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   opts.Engine,
		gate:     opts.Gate,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		decimals: [2]int32{opts.PrimaryDecimals, opts.SecondaryDecimals},
		logger:   logger,
	}
}

// NewRouter builds the route table.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/config", s.HandleConfig).Methods(http.MethodGet)
	v1.HandleFunc("/stages", s.HandleStages).Methods(http.MethodGet)
	v1.HandleFunc("/stages/{index:[0-9]+}", s.HandleStage).Methods(http.MethodGet)
	v1.HandleFunc("/rewards", s.HandleRewards).Methods(http.MethodGet)

	v1.HandleFunc("/pools", s.HandlePools).Methods(http.MethodGet)
	v1.HandleFunc("/pools/update", s.HandleMassUpdate).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{id:[0-9]+}", s.HandlePool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/positions/{user}", s.HandlePosition).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/pending/{user}", s.HandlePending).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/deposit", s.HandleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{id:[0-9]+}/withdraw", s.HandleWithdraw).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{id:[0-9]+}/claim", s.HandleClaim).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{id:[0-9]+}/emergency-withdraw", s.HandleEmergencyWithdraw).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{id:[0-9]+}/update", s.HandleUpdatePool).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/stages", s.HandleAppendStage).Methods(http.MethodPost)
	admin.HandleFunc("/pools", s.HandleRegisterPool).Methods(http.MethodPost)
	admin.HandleFunc("/pools/{id:[0-9]+}", s.HandleUpdatePoolWeight).Methods(http.MethodPut)
	admin.HandleFunc("/dev-fee", s.HandleSetDevFee).Methods(http.MethodPut)
	admin.HandleFunc("/dev-address", s.HandleSetDevAddress).Methods(http.MethodPut)
	admin.HandleFunc("/owner", s.HandleTransferOwnership).Methods(http.MethodPut)
	if s.clock != nil {
		admin.HandleFunc("/clock", s.HandleSetClock).Methods(http.MethodPut)
	}

	return r
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
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
			s.metrics.RecordHTTPRequest(route, r.Method, rec.status, time.Since(start))
		}
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// HandleHealth reports liveness with the engine position.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"seq":    s.engine.Seq(),
		"index":  s.engine.Now(),
	})
}
