package router

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
)

func text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

// newStack returns a handler chain of the dynamic router in front of a
// finalized chi router that only knows /static-table.
func newStack(t *testing.T, r *Router) http.Handler {
	t.Helper()
	frozen := chi.NewRouter()
	frozen.Get("/static-table", text("frozen"))
	frozen.Get("/items/{id}/missing", text("frozen-missing"))
	frozen.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("fallback exploded") })
	return r.Middleware(frozen)
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestResourceKey(t *testing.T) {
	cases := map[string]string{
		"/items/{id}":          "/items",
		"/items/{id}/details":  "/items",
		"/a/b/c":               "/a/b/c",
		"/a/":                  "/a",
		"/":                    "/",
		"":                     "/",
		"/{id}":                "/",
		"/files/*":             "/files",
		"/users/u{id}":         "/users",
		"/api/v1/{org}/{repo}": "/api/v1",
	}
	for pattern, want := range cases {
		assert.Equal(t, want, ResourceKey(pattern), pattern)
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "/items", truncatePath("/items/42"))
	assert.Equal(t, "/", truncatePath("/items"))
	assert.Equal(t, "/", truncatePath("/"))
	assert.Equal(t, "/", truncatePath("items"))
	assert.Equal(t, "/a/b", truncatePath("/a/b/"))
}

func TestDynamicRouteWithParameter(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddView("/items/{id}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("item " + chi.URLParam(req, "id")))
	})))
	h := newStack(t, r)

	res := do(h, http.MethodGet, "/items/42")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "item 42", res.Body.String())

	res = do(h, http.MethodGet, "/items/42/missing")
	assert.Equal(t, "frozen-missing", res.Body.String())

	res = do(h, http.MethodGet, "/static-table")
	assert.Equal(t, "frozen", res.Body.String())

	res = do(h, http.MethodGet, "/nowhere")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDeepRouteWalksPastParameterSegment(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddView("/a/{id}/b", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("b " + chi.URLParam(req, "id")))
	})))
	assert.Equal(t, "/a", ResourceKey("/a/{id}/b"))
	h := newStack(t, r)

	res := do(h, http.MethodGet, "/a/5/b")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "b 5", res.Body.String())

	res = do(h, http.MethodGet, "/a/5")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestNewestRegistrationWins(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddView("/a", text("first")))
	require.NoError(t, r.AddView("/a", text("second")))

	res := do(newStack(t, r), http.MethodGet, "/a")
	assert.Equal(t, "second", res.Body.String())
	assert.Equal(t, 2, r.Len())
}

func TestMethodNotAllowed(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(http.MethodPost, "/orders", text("created")))
	require.NoError(t, r.AddView("/orders", text("changed"), "put", "PUT"))
	h := newStack(t, r)

	res := do(h, http.MethodGet, "/orders")
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
	assert.Equal(t, "POST, PUT", res.Header().Get("Allow"))

	res = do(h, http.MethodPost, "/orders")
	assert.Equal(t, "created", res.Body.String())
	res = do(h, http.MethodPut, "/orders")
	assert.Equal(t, "changed", res.Body.String())
}

func TestOlderResourceMatchesWhenNewerRejectsMethod(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddView("/x", text("any")))
	require.NoError(t, r.AddRoute(http.MethodPost, "/x", text("post")))
	h := newStack(t, r)

	assert.Equal(t, "any", do(h, http.MethodGet, "/x").Body.String())
	assert.Equal(t, "post", do(h, http.MethodPost, "/x").Body.String())
}

func TestPanicsBecomeInternalServerError(t *testing.T) {
	rec := loggingpkg.NewRecorder()
	r := New(rec)
	require.NoError(t, r.AddView("/explode", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	})))
	h := newStack(t, r)

	res := do(h, http.MethodGet, "/explode")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "secret detail")
	entries := rec.Find(slog.LevelError, "Error in dynamic route handler")
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Fields["stack"], "goroutine")

	res = do(h, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Len(t, rec.Find(slog.LevelError, "Internal server error"), 1)
}

func TestPanicAfterWriteKeepsResponse(t *testing.T) {
	rec := loggingpkg.NewRecorder()
	r := New(rec)
	require.NoError(t, r.AddView("/partial", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late failure")
	})))

	res := do(newStack(t, r), http.MethodGet, "/partial")
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, "partial", res.Body.String())

	entries := rec.Find(slog.LevelError, "Error in dynamic route handler")
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusAccepted, entries[0].Fields["status"])
	var panicErr *errspkg.PanicError
	require.ErrorAs(t, entries[0].Err, &panicErr)
	assert.Equal(t, "late failure", panicErr.Value)
	assert.Empty(t, panicErr.Stack)
	assert.Contains(t, entries[0].Fields["stack"], "goroutine")
}

func TestInvalidRoutes(t *testing.T) {
	r := New(nil)
	assert.ErrorIs(t, r.AddView("items", text("x")), errspkg.ErrInvalidPath)
	assert.ErrorIs(t, r.AddView("/items", nil), errspkg.ErrHandlerRequired)
	assert.Error(t, r.AddView("/items/{id", text("x")))
	assert.Error(t, r.AddRoute("", "/x", text("x")))
	assert.Error(t, r.AddRoute("BREW", "/coffee", text("x")))
	assert.Zero(t, r.Len())

	require.NoError(t, r.AddView("", text("root")))
	assert.Equal(t, "root", do(newStack(t, r), http.MethodGet, "/").Body.String())
}

func TestAddStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bare"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bare", "x.txt"), []byte("x"), 0o600))

	r := New(nil)
	require.NoError(t, r.AddStatic("/assets/", dir, StaticOptions{}))
	h := newStack(t, r)

	res := do(h, http.MethodGet, "/assets/hello.txt")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "hello", res.Body.String())

	res = do(h, http.MethodGet, "/assets/bare/")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = do(h, http.MethodPost, "/assets/hello.txt")
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)

	routes := r.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "/assets", routes[0].Key)
	assert.Equal(t, dir, routes[0].Static)
}

func TestAddStaticWithIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bare"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bare", "x.txt"), []byte("x"), 0o600))

	r := New(nil)
	require.NoError(t, r.AddStatic("/files", dir, StaticOptions{ShowIndex: true}))

	res := do(newStack(t, r), http.MethodGet, "/files/bare/")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "x.txt")

	assert.ErrorIs(t, r.AddStatic("files", dir, StaticOptions{}), errspkg.ErrInvalidPath)
	assert.Error(t, r.AddStatic("/files", "", StaticOptions{}))
}

func TestNotFoundDiagnosticsAtDebug(t *testing.T) {
	rec := loggingpkg.NewRecorder()
	r := New(rec)
	require.NoError(t, r.AddView("/items/{id}", text("item")))

	res := do(newStack(t, r), http.MethodGet, "/items")
	assert.Equal(t, http.StatusNotFound, res.Code)

	entries := rec.Find(slog.LevelDebug, "Not found")
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"/items/{id}"}, entries[0].Fields["similar_paths"])
}
