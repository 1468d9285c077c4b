package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/config"
	ledgerrepo "github.com/smallbiznis/stockbook/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/stockbook/internal/ledger/service"
	"github.com/smallbiznis/stockbook/internal/migration"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T, opts ...migration.Option) (*Server, *storetest.Store) {
	t.Helper()
	s := storetest.Open(t)
	m, err := migration.New(s.DB, s.Backup, s.Clock, s.Log, opts...)
	require.NoError(t, err)
	metrics, err := obsmetrics.New()
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Log:        s.Log,
		Cfg:        config.Config{AppName: "stockbook", OpsAddr: "127.0.0.1:0"},
		Backup:     s.Backup,
		Migrator:   m,
		Ledger:     ledgerservice.NewService(ledgerservice.Params{DB: s.DB, Log: s.Log, Repo: ledgerrepo.Provide()}),
		ObsMetrics: metrics,
	})
	return srv, s
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["integrity"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReady(t *testing.T) {
	srv, s := newTestServer(t)
	s.InsertProduct(t, "A", 1, 2, 5)

	rec, body := get(t, srv, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 0, body["ledger_drift"])
}

func TestReadyReportsDrift(t *testing.T) {
	srv, s := newTestServer(t)
	id := s.InsertProduct(t, "A", 1, 2, 5)
	s.MustExec(t, `UPDATE products SET stock = 7 WHERE id = ?`, id)

	rec, body := get(t, srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", body["status"])
	assert.EqualValues(t, 1, body["ledger_drift"])
}

func TestReadyReportsPendingMigrations(t *testing.T) {
	srv, _ := newTestServer(t, migration.WithMigrations(migration.Migration{
		Version: 99,
		Name:    "pending",
		Up:      func(context.Context, *gorm.DB, time.Time) error { return nil },
	}))

	rec, body := get(t, srv, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.EqualValues(t, 5, body["schema_version"])
	assert.EqualValues(t, 99, body["schema_latest"])
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.obsMetrics.RecordSaleCommitted()

	rec, _ := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stockbook_sales_committed_total 1")
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{apperror.Validation("bad"), http.StatusBadRequest, "validation"},
		{fmt.Errorf("wrapped: %w", apperror.NotFound("gone")), http.StatusNotFound, "not_found"},
		{apperror.New(apperror.KindInsufficientStock, "short"), http.StatusConflict, "insufficient_stock"},
		{apperror.New(apperror.KindAuthorization, "no"), http.StatusForbidden, "authorization"},
		{apperror.New(apperror.KindFxUnavailable, "fx"), http.StatusServiceUnavailable, "fx_unavailable"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typ, payload.Type)
	}

	_, payload := mapError(errors.New("secret path /var/db"))
	assert.Equal(t, "internal server error", payload.Message)
}
