package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/breaker"
	"github.com/fyrsmithlabs/skillgate/internal/config"
	"github.com/fyrsmithlabs/skillgate/internal/promotion"
)

type fakeEvaluator struct {
	decision  promotion.Decision
	lastSkill string
	calls     int
}

func (f *fakeEvaluator) EvaluateAndPromote(_ context.Context, skill string, _ []promotion.ShadowOutcome) promotion.Decision {
	f.calls++
	f.lastSkill = skill
	return f.decision
}

type fakeEvidence struct {
	bundles []*promotion.EvidenceBundle
	err     error
}

func (f *fakeEvidence) List(string) ([]*promotion.EvidenceBundle, error) {
	return f.bundles, f.err
}

type fakeBreakerStatus struct {
	open   bool
	status breaker.Status
}

func (f *fakeBreakerStatus) IsOpen(string) bool              { return f.open }
func (f *fakeBreakerStatus) GetStatus(string) breaker.Status { return f.status }

func newTestServer(t *testing.T, evaluator *fakeEvaluator) (*Server, *promotion.Store) {
	t.Helper()
	store := promotion.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	s, err := NewServer(evaluator, store, &fakeEvidence{}, &fakeBreakerStatus{}, zap.NewNop(), config.ServerConfig{})
	require.NoError(t, err)
	return s, store
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEvaluate(t *testing.T) {
	ev := &fakeEvaluator{decision: promotion.Decision{Promoted: true, Reason: "promoted:1.1.0"}}
	s, _ := newTestServer(t, ev)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotion/evaluate", `{"skill":"web_search"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Promoted)
	assert.Equal(t, "promoted:1.1.0", resp.Reason)
	assert.Equal(t, "web_search", ev.lastSkill)
}

func TestEvaluateRequiresSkill(t *testing.T) {
	ev := &fakeEvaluator{}
	s, _ := newTestServer(t, ev)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotion/evaluate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ev.calls)
}

func TestEvaluateRejectsInvalidBody(t *testing.T) {
	s, _ := newTestServer(t, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotion/evaluate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordAndStats(t *testing.T) {
	s, _ := newTestServer(t, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotion/record", `{"skill":"web_search","delta":0.05}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/api/v1/promotion/record", `{"skill":"web_search","delta":-0.01}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/promotion/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state promotion.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Contains(t, state.Stats, "web_search")
	assert.Equal(t, 2, state.Stats["web_search"].Trials)
	assert.Equal(t, 1, state.Stats["web_search"].Wins)
	assert.InDelta(t, 0.02, state.Stats["web_search"].AvgDelta, 1e-9)
}

func TestRecordRequiresSkill(t *testing.T) {
	s, _ := newTestServer(t, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotion/record", `{"delta":0.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvidenceList(t *testing.T) {
	store := promotion.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	evidence := &fakeEvidence{bundles: []*promotion.EvidenceBundle{
		{Skill: "web_search", Version: "1.1.0"},
	}}
	s, err := NewServer(&fakeEvaluator{}, store, evidence, nil, zap.NewNop(), config.ServerConfig{})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/evidence/web_search", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var bundles []*promotion.EvidenceBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundles))
	require.Len(t, bundles, 1)
	assert.Equal(t, "web_search", bundles[0].Skill)
}

func TestEvidenceListError(t *testing.T) {
	store := promotion.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	evidence := &fakeEvidence{err: errors.New("disk gone")}
	s, err := NewServer(&fakeEvaluator{}, store, evidence, nil, zap.NewNop(), config.ServerConfig{})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/evidence/web_search", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBreakerStatus(t *testing.T) {
	store := promotion.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	cb := &fakeBreakerStatus{open: true, status: breaker.Status{ErrorRate: 0.75, CooldownRemaining: 12.5}}
	s, err := NewServer(&fakeEvaluator{}, store, nil, cb, zap.NewNop(), config.ServerConfig{})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/breaker/web_search", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BreakerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "web_search", resp.Skill)
	assert.True(t, resp.Open)
	assert.InDelta(t, 0.75, resp.ErrorRate, 1e-9)
	assert.InDelta(t, 12.5, resp.CooldownRemaining, 1e-9)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeEvaluator{})

	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	store := promotion.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())

	_, err := NewServer(nil, store, nil, nil, zap.NewNop(), config.ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(&fakeEvaluator{}, nil, nil, nil, zap.NewNop(), config.ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(&fakeEvaluator{}, store, nil, nil, nil, config.ServerConfig{})
	assert.Error(t, err)
}
