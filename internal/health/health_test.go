package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct{ err error }

func (f fakeStore) Health() error { return f.err }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newChecker(store StoreChecker, redis Pinger) *Checker {
	hc := New(zap.NewNop())
	hc.AddReadiness("store", StoreCheck(store))
	if redis != nil {
		hc.AddReadiness("redis", PingCheck(redis, time.Second))
	}
	return hc
}

func TestChecker_Ready(t *testing.T) {
	hc := newChecker(fakeStore{}, fakePinger{})

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	results := hc.Report()
	assert.Equal(t, "OK", results["store"])
	assert.Equal(t, "OK", results["redis"])
}

func TestChecker_StoreDown(t *testing.T) {
	hc := newChecker(fakeStore{err: errors.New("connection refused")}, nil)

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// 存活检查不受存储影响
	rec = httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	results := hc.Report()
	assert.Contains(t, results["store"], "ERROR")
	_, hasRedis := results["redis"]
	assert.False(t, hasRedis)
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, DirCheck(dir)())
	assert.Error(t, DirCheck(filepath.Join(dir, "missing"))())

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, DirCheck(file)())
}
