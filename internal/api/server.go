// Package api exposes the dashboard, owner management and the
// generate-then-send forms over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/example/sems-monitoring/internal/account"
	"github.com/example/sems-monitoring/internal/common"
	"github.com/example/sems-monitoring/internal/device"
	"github.com/example/sems-monitoring/internal/flow"
	"github.com/example/sems-monitoring/internal/message"
)

var (
	reqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of API requests",
	}, []string{"route", "status"})
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Latency of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

const requestIDHeader = "X-Request-Id"

type Options struct {
	Devices       *device.Registry
	Accounts      *account.Service
	Tokens        *account.Tokens
	Engine        *message.Engine
	Flows         *flow.Registry
	StatementBase string
	GenerateRPS   float64
	GenerateBurst int
	Logger        zerolog.Logger
}

type Server struct {
	devices       *device.Registry
	accounts      *account.Service
	tokens        *account.Tokens
	engine        *message.Engine
	flows         *flow.Registry
	statementBase string
	limits        *limiters
	now           func() time.Time
	tracer        trace.Tracer
	logger        zerolog.Logger
}

func NewServer(o Options) *Server {
	return &Server{
		devices:       o.Devices,
		accounts:      o.Accounts,
		tokens:        o.Tokens,
		engine:        o.Engine,
		flows:         o.Flows,
		statementBase: o.StatementBase,
		limits:        newLimiters(o.GenerateRPS, o.GenerateBurst),
		now:           time.Now,
		tracer:        otel.Tracer("api"),
		logger:        o.Logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(instrument)

	r.Post("/v1/auth/signup", s.signUp)
	r.Post("/v1/auth/signin", s.signIn)

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.Authenticate)

		r.Get("/v1/devices", s.listDevices)
		r.Get("/v1/devices/{id}", s.getDevice)

		r.With(s.rateLimit).Post("/v1/devices/{id}/alerts/generate", s.generateAlert)
		r.Post("/v1/devices/{id}/alerts/send", s.send(flow.KindAlert))
		r.With(s.rateLimit).Post("/v1/devices/{id}/billing/generate", s.generateBilling)
		r.Post("/v1/devices/{id}/billing/send", s.send(flow.KindBilling))

		r.Group(func(r chi.Router) {
			r.Use(account.RequireAdmin)
			r.Post("/v1/owners", s.createOwner)
			r.Put("/v1/owners/{id}", s.updateOwner)
			r.Delete("/v1/owners/{id}", s.deleteOwner)
		})
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		reqCounter.WithLabelValues(route, strconv.Itoa(status)).Inc()
		requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// limiters keeps one token bucket per signed-in user for the generation
// endpoints. Buckets idle for longer than ttl are dropped on the next call.
type limiters struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	ttl   time.Duration
	byKey map[string]*limiterEntry
	now   func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func newLimiters(rps float64, burst int) *limiters {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiters{
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   30 * time.Minute,
		byKey: map[string]*limiterEntry{},
		now:   time.Now,
	}
}

func (l *limiters) allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	for k, e := range l.byKey {
		if now.Sub(e.lastUsed) > l.ttl {
			delete(l.byKey, k)
		}
	}
	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.byKey[key] = e
	}
	e.lastUsed = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

func (l *limiters) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := account.UserFrom(r.Context())
		if !s.limits.allow(u.Email) {
			s.respondMsg(r.Context(), w, http.StatusTooManyRequests, "Too many generation requests. Please wait a moment and try again.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondErr logs err and answers with msg; err never reaches the client.
func (s *Server) respondErr(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	logger := common.WithContext(ctx, s.logger)
	logger.Error().Err(err).Int("status", status).Msg("api request failed")
	writeJSON(w, status, errorBody{Success: false, Message: msg})
}

func (s *Server) respondMsg(_ context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
