// Package router adds routes to an HTTP server that is already serving.
//
// Router keeps a side table of resources indexed by their literal path
// prefix. Its Middleware consults that table before handing the request to
// the finalized chi router behind it.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
)

// StaticOptions tune AddStatic.
type StaticOptions struct {
	// ShowIndex serves directory listings. Without it a directory is only
	// served when it contains index.html.
	ShowIndex bool
}

// RouteInfo describes one registration.
type RouteInfo struct {
	Key     string
	Pattern string
	Methods []string
	Static  string
}

type resource struct {
	key     string
	pattern string
	methods []string
	static  string
	mux     *chi.Mux
	handler http.Handler
}

// Router is the side table of late routes.
type Router struct {
	logger loggingpkg.ServiceLogger

	mu    sync.RWMutex
	index map[string][]*resource
	order []*resource
}

// New creates an empty Router. A nil logger discards output.
func New(logger loggingpkg.ServiceLogger) *Router {
	if logger == nil {
		logger = loggingpkg.Discard()
	}
	return &Router{
		logger: logger,
		index:  make(map[string][]*resource),
	}
}

// AddView registers handler for route. With no methods every method is accepted.
func (r *Router) AddView(route string, handler http.Handler, methods ...string) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	res, err := newResource(route, handler, normalizeMethods(methods))
	if err != nil {
		return err
	}
	r.add(res)
	return nil
}

// AddRoute registers handler for a single method on path.
func (r *Router) AddRoute(method, path string, handler http.HandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if strings.TrimSpace(method) == "" {
		return fmt.Errorf("router: method is required for %q", path)
	}
	return r.AddView(path, handler, method)
}

// AddStatic serves files below dir under prefix.
func (r *Router) AddStatic(prefix, dir string, opts StaticOptions) error {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return errspkg.ErrInvalidPath
	}
	if dir == "" {
		return fmt.Errorf("router: static directory is required for %q", prefix)
	}
	res, err := newResource(prefix+"/*", StaticHandler(prefix, dir, opts), []string{http.MethodGet, http.MethodHead})
	if err != nil {
		return err
	}
	res.key = staticKey(prefix)
	res.static = dir
	r.add(res)
	return nil
}

func (r *Router) add(res *resource) {
	r.mu.Lock()
	r.index[res.key] = append(r.index[res.key], res)
	r.order = append(r.order, res)
	r.mu.Unlock()

	r.logger.Debug("Dynamic route added", loggingpkg.LogFields{
		"key":     res.key,
		"pattern": res.pattern,
		"methods": res.methods,
	})
}

func newResource(pattern string, handler http.Handler, methods []string) (res *resource, err error) {
	if pattern != "" && !strings.HasPrefix(pattern, "/") {
		return nil, errspkg.ErrInvalidPath
	}
	route := pattern
	if route == "" {
		route = "/"
	}

	mux := chi.NewRouter()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("router: invalid route %q: %v", pattern, r)
		}
	}()
	if len(methods) == 0 {
		mux.Handle(route, handler)
	} else {
		for _, m := range methods {
			mux.Method(m, route, handler)
		}
	}

	return &resource{
		key:     ResourceKey(route),
		pattern: route,
		methods: methods,
		mux:     mux,
		handler: handler,
	}, nil
}

// match reports whether the resource serves method on path. The returned
// route context carries the URL parameters.
func (res *resource) match(method, path string) (*chi.Context, bool) {
	rctx := chi.NewRouteContext()
	if res.mux.Match(rctx, method, path) {
		return rctx, true
	}
	return nil, false
}

// allowed returns the methods that would have matched path.
func (res *resource) allowed(path string) []string {
	var out []string
	for _, m := range res.methods {
		if _, ok := res.match(m, path); ok {
			out = append(out, m)
		}
	}
	return out
}

// Resolve finds the newest resource serving method on path, walking the
// path up to "/". When only other methods match, allowed lists them.
func (r *Router) Resolve(method, path string) (handler http.Handler, rctx *chi.Context, allowed []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowedSet := map[string]struct{}{}
	for part := path; part != ""; part = truncatePath(part) {
		resources := r.index[part]
		for i := len(resources) - 1; i >= 0; i-- {
			res := resources[i]
			if rctx, ok := res.match(method, path); ok {
				return res.handler, rctx, nil
			}
			for _, m := range res.allowed(path) {
				allowedSet[m] = struct{}{}
			}
		}
		if part == "/" {
			break
		}
	}

	for m := range allowedSet {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return nil, nil, allowed
}

// Middleware serves requests that match a dynamic route and passes the rest
// to next.
func (r *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path
		if path == "" {
			path = "/"
		}
		handler, rctx, allowed := r.Resolve(req.Method, path)

		if handler == nil {
			if len(allowed) > 0 {
				r.logger.Debug("Method not allowed", loggingpkg.LogFields{
					"method":  req.Method,
					"path":    path,
					"allowed": allowed,
				})
				w.Header().Set("Allow", strings.Join(allowed, ", "))
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			r.serveFallback(next, w, req)
			return
		}

		r.logger.Debug("Dynamic route matched", loggingpkg.LogFields{
			"method":  req.Method,
			"path":    path,
			"pattern": rctx.RoutePattern(),
		})
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		r.serve(handler, w, req, "Error in dynamic route handler")
	})
}

func (r *Router) serveFallback(next http.Handler, w http.ResponseWriter, req *http.Request) {
	if !r.logger.Enabled(slog.LevelDebug) {
		r.serve(next, w, req, "Internal server error")
		return
	}
	ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
	r.serve(next, ww, req, "Internal server error")
	if ww.Status() == http.StatusNotFound {
		r.log404(req)
	}
}

// serve runs h and turns a panic into a 500 response unless h already
// started writing one.
func (r *Router) serve(h http.Handler, w http.ResponseWriter, req *http.Request, logMsg string) {
	ww, ok := w.(middleware.WrapResponseWriter)
	if !ok {
		ww = middleware.NewWrapResponseWriter(w, req.ProtoMajor)
	}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		r.logger.Error(logMsg, &errspkg.PanicError{Value: rec}, loggingpkg.LogFields{
			"method": req.Method,
			"path":   req.URL.Path,
			"status": ww.Status(),
			"stack":  string(debug.Stack()),
		})
		if ww.Status() == 0 {
			http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()
	h.ServeHTTP(ww, req)
}

func (r *Router) log404(req *http.Request) {
	routes := r.Routes()
	registered := make([]string, 0, len(routes))
	var similar []string
	for _, info := range routes {
		registered = append(registered, info.Key+" -> "+info.Pattern)
		for _, part := range strings.Split(info.Pattern, "/") {
			if part != "" && strings.Contains(req.URL.Path, part) {
				similar = append(similar, info.Pattern)
				break
			}
		}
	}
	r.logger.Debug("Not found", loggingpkg.LogFields{
		"method":         req.Method,
		"path":           req.URL.Path,
		"query":          req.URL.RawQuery,
		"dynamic_routes": registered,
		"similar_paths":  similar,
	})
}

// Routes lists registrations in the order they were added.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteInfo, 0, len(r.order))
	for _, res := range r.order {
		out = append(out, RouteInfo{
			Key:     res.key,
			Pattern: res.pattern,
			Methods: append([]string(nil), res.methods...),
			Static:  res.static,
		})
	}
	return out
}

// Len returns the number of registrations.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ResourceKey returns the index key of a route pattern: the literal part
// before the first parameter, cut back to the last "/", without a trailing
// slash. Patterns without parameters are keyed by themselves.
func ResourceKey(pattern string) string {
	key := pattern
	if i := strings.IndexAny(pattern, "{*"); i >= 0 {
		before := pattern[:i]
		if j := strings.LastIndex(before, "/"); j >= 0 {
			key = before[:j]
		} else {
			key = before
		}
	}
	key = strings.TrimRight(key, "/")
	if key == "" {
		return "/"
	}
	return key
}

func staticKey(prefix string) string {
	key := strings.TrimRight(prefix, "/")
	if key == "" {
		return "/"
	}
	return key
}

func truncatePath(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func normalizeMethods(methods []string) []string {
	if len(methods) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
