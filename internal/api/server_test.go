package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FlowGuard/internal/classifier"
	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/manager"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	iface    string
	startErr error
	events   []model.Event
}

func (f *fakeController) Start(iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.iface = iface
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeController) Status() manager.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := manager.Status{Running: f.running, State: manager.Stopped.String()}
	if f.running {
		st.State = manager.Running.String()
		st.Interface = f.iface
	}
	return st
}

func (f *fakeController) Recent(n int) []model.Event {
	if n > len(f.events) {
		n = len(f.events)
	}
	return f.events[len(f.events)-n:]
}

func (f *fakeController) Stats() map[string]int {
	return map[string]int{"Unknown": len(f.events)}
}

func newTestServer(t *testing.T, ctrl Controller) *Server {
	t.Helper()
	cfg := config.Default()
	sel, err := classifier.NewSelector(cfg.Classifier)
	require.NoError(t, err)
	adapter, err := classifier.NewAdapter(cfg.Classifier, sel, nil)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	m.PacketsCaptured.Add(3)
	return NewServer(ctrl, adapter, nil, m.Registry)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusFollowsLifecycle(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	var st manager.Status
	rec := do(t, s, http.MethodGet, "/api/live/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Running)
	assert.Equal(t, "stopped", st.State)

	rec = do(t, s, http.MethodGet, "/api/live/start?iface=eth1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.Equal(t, "eth1", st.Interface)

	rec = do(t, s, http.MethodGet, "/api/live/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Running)
}

func TestStartFailureReturnsError(t *testing.T) {
	s := newTestServer(t, &fakeController{startErr: errors.New("failed to start capture on \"eth9\": no such device")})

	rec := do(t, s, http.MethodGet, "/api/live/start?iface=eth9", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such device")
}

func TestRecent(t *testing.T) {
	ctrl := &fakeController{}
	for i := 0; i < 5; i++ {
		ctrl.events = append(ctrl.events, model.Event{ID: string(rune('a' + i)), Time: time.Unix(int64(i), 0), Model: "bcc"})
	}
	s := newTestServer(t, ctrl)

	rec := do(t, s, http.MethodGet, "/api/live/recent?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batch model.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, "d", batch.Items[0].ID)
	assert.Equal(t, "e", batch.Items[1].ID)

	rec = do(t, s, http.MethodGet, "/api/live/recent?n=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/live/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"model":"bcc","stats":{"Unknown":5}}`, rec.Body.String())
}

func TestSelectModel(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	rec := do(t, s, http.MethodPost, "/api/ml/select", `{"model":"cicids"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var active struct {
		Active string     `json:"active"`
		Mode   model.Mode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, "cicids", active.Active)
	assert.Equal(t, model.ModeFlow, active.Mode)

	rec = do(t, s, http.MethodPost, "/api/ml/select?model=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown model variant")

	rec = do(t, s, http.MethodPost, "/api/ml/select", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/ml/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":"cicids"`)
}

func TestHealthReportsUnloadedModel(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	rec := do(t, s, http.MethodGet, "/api/ml/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h classifier.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "bcc", h.Model)
	assert.False(t, h.Loaded)
	assert.False(t, h.OK)
	assert.Len(t, h.FeatureNames, 15)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowguard_packets_captured_total 3")
}

func TestUnknownMethodIsRejected(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	rec := do(t, s, http.MethodDelete, "/api/live/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/ml/select", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/live/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
