package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/config"
)

func erapiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/TRY", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"TRY","time_last_update_unix":1773532800,
			"rates":{"TRY":1,"USD":0.025,"EUR":0.02}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryEnv(t *testing.T, ratesURL string) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RATES_SOURCE", "erapi")
	t.Setenv("RATES_URL", ratesURL)
	t.Setenv("RATES_CACHE", "store")
	t.Setenv("REPORTING_CURRENCY", "TRY")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "text")
}

func TestRatesCommand(t *testing.T) {
	memoryEnv(t, erapiServer(t).URL)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(logrus.New())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"rates", "usd", "EUR", "GBP"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	out := stdout.String()
	assert.Contains(t, out, "source erapi, as of 2026-03-15T00:00:00Z, 1 unit in TRY")
	assert.Contains(t, out, "USD\t40.0000\n")
	assert.Contains(t, out, "EUR\t50.0000\n")
	assert.Contains(t, out, "GBP\tunavailable\n")
	assert.Contains(t, stderr.String(), "Fetched exchange rates")
}

func TestRatesCommand_SourceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	memoryEnv(t, srv.URL)

	cmd := newRootCmd(logrus.New())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"rates"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh rates")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	memoryEnv(t, "")
	t.Setenv("STORE_DRIVER", "postgres")

	cmd := newRootCmd(logrus.New())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestNewApp_MemoryStore(t *testing.T) {
	memoryEnv(t, erapiServer(t).URL)
	cfg, err := config.Load("")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close(context.Background())

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/entries", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, "TRY", a.ledger.ReportingCurrency())

	usd, err := a.rates.GetRate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 40.0, usd)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	memoryEnv(t, "")
	t.Setenv("PORT", "0")
	cfg, err := config.Load("")
	require.NoError(t, err)

	logger := logrus.New()
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}
