package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/health"
	"attachpurge/backend/internal/monitoring"
	"attachpurge/backend/internal/scheduler"
	"attachpurge/backend/internal/service"
	"attachpurge/backend/internal/storage/filesystem"
	"attachpurge/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockPurge 模拟清理任务控制
type MockPurge struct {
	mock.Mock
}

func (m *MockPurge) Trigger() error {
	return m.Called().Error(0)
}

func (m *MockPurge) Cancel() error {
	return m.Called().Error(0)
}

func (m *MockPurge) Status() scheduler.Status {
	return m.Called().Get(0).(scheduler.Status)
}

type testEnv struct {
	router *gin.Engine
	purge  *MockPurge
	store  *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	checker := health.New(zap.NewNop())
	checker.AddReadiness("store", health.StoreCheck(store))

	purge := new(MockPurge)
	router := NewRouter(RouterDependencies{
		Purge:    purge,
		Policies: service.NewPolicyService(store, zap.NewNop()),
		Blobs:    blobs,
		Health:   checker,
		Metrics:  monitoring.NewMetrics(prometheus.NewRegistry()),
		Logger:   zap.NewNop(),
	})
	return &testEnv{router: router, purge: purge, store: store}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPurgeRoutes(t *testing.T) {
	t.Run("启动运行", func(t *testing.T) {
		env := newTestEnv(t)
		env.purge.On("Trigger").Return(nil).Once()
		env.purge.On("Status").Return(scheduler.Status{Running: true})

		rec := env.do(http.MethodPost, "/api/v1/purge/run", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"running":true`)
		env.purge.AssertExpectations(t)
	})

	t.Run("运行中再次启动", func(t *testing.T) {
		env := newTestEnv(t)
		env.purge.On("Trigger").Return(scheduler.ErrAlreadyRunning)

		rec := env.do(http.MethodPost, "/api/v1/purge/run", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, MsgRunInProgress, decode(t, rec).Msg)
	})

	t.Run("锁服务异常", func(t *testing.T) {
		env := newTestEnv(t)
		env.purge.On("Trigger").Return(errors.New("acquire run lock: dial tcp: refused"))

		rec := env.do(http.MethodPost, "/api/v1/purge/run", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, MsgRunStartFailed, decode(t, rec).Msg)
	})

	t.Run("没有运行时取消", func(t *testing.T) {
		env := newTestEnv(t)
		env.purge.On("Cancel").Return(scheduler.ErrNotRunning)

		rec := env.do(http.MethodPost, "/api/v1/purge/cancel", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("状态包含上次结果", func(t *testing.T) {
		env := newTestEnv(t)
		env.purge.On("Status").Return(scheduler.Status{
			Schedule:   "0 3 * * *",
			LastResult: &domain.RunResult{RunID: "r1", Outcome: domain.RunCancelled},
		})

		rec := env.do(http.MethodGet, "/api/v1/purge/status", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `"outcome":"cancelled"`)
		assert.Contains(t, body, `"schedule":"0 3 * * *"`)
	})
}

func TestPolicyRoutes(t *testing.T) {
	env := newTestEnv(t)

	// 系统策略未保存时返回默认值
	rec := env.do(http.MethodGet, "/api/v1/policies/_system", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"disabled"`)
	assert.Contains(t, rec.Body.String(), `"scope":"_system"`)

	rec = env.do(http.MethodGet, "/api/v1/policies/DOCS", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPut, "/api/v1/policies/DOCS",
		`{"mode":"scope","revisionCountRule":{"enabled":true,"maxRevisions":3},"sendPlainTextMail":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved, err := env.store.GetPolicy(context.Background(), "DOCS")
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyModeScope, saved.Mode)
	assert.Equal(t, 3, saved.RevisionCountRule.MaxRevisions)
	assert.False(t, saved.SendPlainTextMail)

	rec = env.do(http.MethodPut, "/api/v1/policies/_system", `{"mode":"scope","ageRule":{"enabled":true,"maxDaysOld":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/v1/policies/_system", `{"mode":"global","ageRule":{"enabled":true,"maxDaysOld":30}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Msg, domain.ErrSystemDefers.Error())

	rec = env.do(http.MethodPut, "/api/v1/policies/_system", `{"mode":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidRequest, decode(t, rec).Msg)

	rec = env.do(http.MethodDelete, "/api/v1/policies/DOCS", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, "/api/v1/policies/DOCS", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyRoutes_RejectsNonJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/policies/DOCS", strings.NewReader("mode: scope"))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestOpsRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"OK"`)

	rec = env.do(http.MethodGet, "/api/v1/storage/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"files":0`)

	// 先产生一次请求记录，再读取指标
	rec = env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attachpurge_http_requests_total")
}

func TestHealthReady_StoreClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	rec := env.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
