// Package server is the HTTP front end component. It is driven entirely by
// messages: start, stop and route registration arrive as commands and every
// command is answered with exactly one success or failure event.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/nether/internal/runtime/component"
	"github.com/drblury/nether/internal/runtime/config"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
	metricspkg "github.com/drblury/nether/internal/runtime/metrics"
	"github.com/drblury/nether/internal/runtime/router"
)

// Name is the component name of every Server.
const Name = "server"

// Server is the HTTP front end component.
type Server struct {
	*component.Base

	conf     *config.Config
	metrics  *metricspkg.Metrics
	gatherer prometheus.Gatherer

	mux     *chi.Mux
	dynamic *router.Router

	mu     sync.Mutex
	http   *http.Server
	addr   string
	frozen atomic.Bool
	active atomic.Int64
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics records HTTP metrics and serves gatherer on the metrics path
// when metrics are enabled. A nil gatherer uses the default registry.
func WithMetrics(m *metricspkg.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// New builds a Server. It does not listen until it handles StartServer or
// Start is called.
func New(conf *config.Config, logger loggingpkg.ServiceLogger, opts ...Option) (*Server, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	s := &Server{
		Base: component.NewBase(Name, logger),
		conf: conf,
		mux:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.dynamic = router.New(s.Logger())

	s.mux.Use(s.trackRequests)
	if len(conf.CORSAllowedOrigins) > 0 {
		s.mux.Use(s.cors)
	}
	s.mux.Use(s.dynamic.Middleware)

	s.mux.Get("/healthz", s.handleHealth)
	if conf.MetricsEnabled {
		s.mux.Handle(conf.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s, nil
}

// Supports lists the server commands.
func (s *Server) Supports() component.Capability {
	return component.Accepts(StartServerType, StopServerType, RegisterViewType, AddViewType, AddStaticType)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Dynamic returns the router that takes registrations once serving started.
func (s *Server) Dynamic() *router.Router { return s.dynamic }

// Addr returns the listen address, empty when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serving reports whether the server is listening.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http != nil
}

// Handle answers every supported command with one success or failure event.
func (s *Server) Handle(ctx context.Context, msg message.Message, dispatch component.Dispatch, _ component.JoinStream) error {
	creator := message.WithCreator(s.Name())

	var result message.Message
	switch m := msg.(type) {
	case StartServer:
		addr, err := s.startFromMessage(ctx, m)
		if err != nil {
			result = StartServerFailure{message.NewFailure(err, creator)}
		} else {
			result = ServerStarted{SuccessEvent: message.NewSuccess(creator), Addr: addr}
		}
	case StopServer:
		if err := s.Stop(ctx); err != nil {
			result = StopServerFailure{message.NewFailure(err, creator)}
		} else {
			result = ServerStopped{message.NewSuccess(creator)}
		}
	case RegisterView:
		if err := s.AddView(m.Route, m.View, m.Methods...); err != nil {
			result = RegisterViewFailure{message.NewFailure(err, creator)}
		} else {
			result = ViewRegistered{SuccessEvent: message.NewSuccess(creator), Route: m.Route}
		}
	case AddView:
		if err := s.addRoute(m.Method, m.Route, m.Handler); err != nil {
			result = AddViewFailure{message.NewFailure(err, creator)}
		} else {
			result = ViewAdded{SuccessEvent: message.NewSuccess(creator), Route: m.Route}
		}
	case AddStatic:
		if err := s.AddStatic(m.Prefix, m.Path, m.Options); err != nil {
			result = AddStaticFailure{message.NewFailure(err, creator)}
		} else {
			result = StaticAdded{SuccessEvent: message.NewSuccess(creator), Prefix: m.Prefix}
		}
	default:
		s.Logger().Error("Unhandled message type", nil, loggingpkg.LogFields{"message_type": string(msg.Type())})
		return nil
	}
	return dispatch(ctx, result)
}

func (s *Server) startFromMessage(ctx context.Context, m StartServer) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	host := m.Host
	if host == "" {
		host = s.conf.Host
	}
	return s.Start(ctx, net.JoinHostPort(host, strconv.Itoa(m.Port)))
}

// OnStart marks the component started. Listening begins with StartServer.
func (s *Server) OnStart(ctx context.Context) error {
	return s.Base.OnStart(ctx)
}

// OnStop shuts the listener down if it is up, then marks the component stopped.
func (s *Server) OnStop(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, errspkg.ErrServerNotRunning) {
		return err
	}
	return s.Base.OnStop(ctx)
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr asks for port 0.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return "", errspkg.ErrServerRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.frozen.Store(true)
	s.http = srv
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger().Error("HTTP server failed", err, loggingpkg.LogFields{"address": ln.Addr().String()})
		}
	}()

	s.MarkRunning()
	s.Logger().Info("Server started", loggingpkg.LogFields{"address": s.addr})
	if s.Logger().Enabled(slog.LevelDebug) {
		s.logRoutes()
	}
	return s.addr, nil
}

// Stop shuts the server down, waiting up to ShutdownTimeout for requests in
// flight before closing their connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.addr = ""
	s.mu.Unlock()
	if srv == nil {
		return errspkg.ErrServerNotRunning
	}

	if n := s.active.Load(); n > 0 {
		s.Logger().Info("Waiting for ongoing requests before shutdown", loggingpkg.LogFields{"requests": n})
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.conf.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.Logger().Warn("Shutdown timed out, active requests were killed", loggingpkg.LogFields{
			"timeout": s.conf.ShutdownTimeout.String(),
		})
		_ = srv.Close()
	}

	_ = s.Base.OnStop(ctx)
	s.Logger().Info("Server stopped", nil)
	return nil
}

// AddView mounts view on route. Before the server first starts serving the
// route goes into the chi router; afterwards into the dynamic router.
func (s *Server) AddView(route string, view http.Handler, methods ...string) error {
	if view == nil {
		return errspkg.ErrHandlerRequired
	}
	s.mu.Lock()
	dynamic := s.frozen.Load()
	var err error
	if dynamic {
		err = s.dynamic.AddView(route, view, methods...)
	} else {
		err = s.mount(route, view, methods...)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Logger().Info("View assigned to route", loggingpkg.LogFields{
		"route":   route,
		"methods": methods,
		"dynamic": dynamic,
	})
	return nil
}

func (s *Server) addRoute(method, route string, handler http.HandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if strings.TrimSpace(method) == "" {
		return fmt.Errorf("server: method is required for %q", route)
	}
	return s.AddView(route, handler, method)
}

// AddStatic serves dir under prefix.
func (s *Server) AddStatic(prefix, dir string, opts router.StaticOptions) error {
	s.mu.Lock()
	dynamic := s.frozen.Load()
	var err error
	if dynamic {
		err = s.dynamic.AddStatic(prefix, dir, opts)
	} else {
		err = s.mountStatic(prefix, dir, opts)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Logger().Info("Static route added", loggingpkg.LogFields{
		"prefix":  prefix,
		"path":    dir,
		"dynamic": dynamic,
	})
	return nil
}

func (s *Server) mountStatic(prefix, dir string, opts router.StaticOptions) error {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return errspkg.ErrInvalidPath
	}
	if dir == "" {
		return fmt.Errorf("server: static directory is required for %q", prefix)
	}
	return s.mount(prefix+"/*", router.StaticHandler(prefix, dir, opts), http.MethodGet, http.MethodHead)
}

// mount registers on the chi router, reporting invalid patterns as errors.
func (s *Server) mount(route string, h http.Handler, methods ...string) (err error) {
	if route != "" && !strings.HasPrefix(route, "/") {
		return errspkg.ErrInvalidPath
	}
	if route == "" {
		route = "/"
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("server: invalid route %q: %v", route, r)
		}
	}()
	if len(methods) == 0 {
		s.mux.Handle(route, h)
		return nil
	}
	for _, m := range methods {
		s.mux.Method(strings.ToUpper(strings.TrimSpace(m)), route, h)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, map[string]any{
		"status":  "ok",
		"serving": s.Serving(),
		"routes":  s.dynamic.Len(),
	}); err != nil {
		s.Logger().Error("Failed to encode health response", err, nil)
	}
}

func (s *Server) logRoutes() {
	var frozen []string
	_ = chi.Walk(s.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		frozen = append(frozen, method+" "+route)
		return nil
	})
	var dynamic []string
	for _, info := range s.dynamic.Routes() {
		entry := info.Key + " -> " + info.Pattern
		if info.Static != "" {
			entry += " (static " + info.Static + ")"
		}
		dynamic = append(dynamic, entry)
	}
	s.Logger().Debug("Registered routes", loggingpkg.LogFields{
		"router":  frozen,
		"dynamic": dynamic,
	})
}

func (s *Server) trackRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.active.Add(1)
		defer s.active.Add(-1)
		done := s.metrics.RequestStarted()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		s.Logger().Debug("Incoming request", loggingpkg.LogFields{
			"method": r.Method,
			"path":   r.URL.RequestURI(),
		})
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			done(r.Method, status)
			s.Logger().Debug("Response", loggingpkg.LogFields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"duration": time.Since(start).String(),
			})
		}()
		next.ServeHTTP(ww, r)
	})
}

// cors answers with the configured allowed origin and short-circuits preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := s.allowedOrigin(origin)
		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(requestOrigin string) string {
	if requestOrigin == "" {
		return ""
	}
	for _, allowed := range s.conf.CORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
