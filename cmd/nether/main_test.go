package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/nether/internal/runtime/config"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/mediator"
)

func TestConfigFlagsDefaults(t *testing.T) {
	conf, err := (&configFlags{}).load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHost, conf.Host)
	assert.Equal(t, config.DefaultPort, conf.Port)
}

func TestConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nether.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 0.0.0.0\nport: 9000\nlog_level: debug\n"), 0o600))

	conf, err := (&configFlags{path: path, port: 9100}).load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", conf.Host)
	assert.Equal(t, 9100, conf.Port)
	assert.Equal(t, "debug", conf.LogLevel)
}

func TestConfigFlagsReadDatabaseEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NETHER_TEST_DSN=postgres://app@db/orders\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("NETHER_TEST_DSN") })

	conf, err := (&configFlags{envFile: path, envPrefix: "NETHER_TEST_"}).load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/orders", conf.DatabaseURL)
}

func TestConfigFlagsMissingEnvFileIsIgnored(t *testing.T) {
	_, err := (&configFlags{envFile: filepath.Join(t.TempDir(), "absent.env"), envPrefix: "NETHER_ABSENT_"}).load()
	assert.NoError(t, err)
}

func TestConfigFlagsRejectInvalidLevel(t *testing.T) {
	_, err := (&configFlags{logLevel: "loud"}).load()
	var verr errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &verr)
}

func newGreetRouter(t *testing.T) http.Handler {
	t.Helper()
	m, err := mediator.New(loggingpkg.Discard(), mediator.WithMiddlewares(mediator.RecovererMiddleware()))
	require.NoError(t, err)
	require.NoError(t, m.Register(newGreeter(loggingpkg.Discard())))
	t.Cleanup(func() { m.Stop(context.Background()) })

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/api/greet/{name}", greetView(m))
	r.Method(http.MethodGet, "/api/greet/", greetView(m))
	return r
}

func TestGreetViewDispatchesThroughMediator(t *testing.T) {
	rec := httptest.NewRecorder()
	newGreetRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/greet/ada", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Hello, ada", body["greeting"])
}

func TestGreetViewReportsFailureEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	newGreetRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/greet/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")
}
