package olympus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/ingest"
	"github.com/minos-eval/minos/pkg/themis"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testObservations(n int) []domain.Observation {
	obs := make([]domain.Observation, n)
	for i := range obs {
		actual := 10 + 3*math.Sin(float64(i)/3)
		lo, hi := actual-1, actual+1
		if i%5 == 0 {
			// Every fifth interval misses, for roughly 80% coverage.
			lo, hi = actual+0.5, actual+2
		}
		obs[i] = domain.Observation{
			Timestamp:      testStart.Add(time.Duration(i) * time.Hour),
			Actual:         actual,
			MedianForecast: actual + 0.2*math.Cos(float64(i)),
			LowerBound:     lo,
			UpperBound:     hi,
			Baselines:      map[string]float64{"Naive": actual + 1.5},
		}
	}
	return obs
}

func predictionsCSV(obs []domain.Observation) string {
	var b strings.Builder
	b.WriteString("Date,y_true,q10,q50,q90\n")
	for _, o := range obs {
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g\n", o.Timestamp.Format(time.RFC3339), o.Actual, o.LowerBound, o.MedianForecast, o.UpperBound)
	}
	return b.String()
}

type testServer struct {
	*Server
	store    *erebus.LocalStore
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, opts ServerOptions) *testServer {
	t.Helper()
	store, err := erebus.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	engineOpts := evaluator.DefaultOptions()
	engineOpts.RollingWindow = 5
	engineOpts.ErrorWindow = 5
	engine := evaluator.NewEngine(engineOpts, nil, hermes.NewPrometheusMetrics(registry))

	gates, err := themis.NewGateEvaluator(themis.DefaultGates())
	require.NoError(t, err)

	manager := &Manager{Engine: engine, Gates: gates}
	loader := ingest.NewLoader(ingest.DefaultSchema(), store, nil)
	srv := NewServer(manager, loader, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), opts, nil)
	t.Cleanup(func() { srv.Close() })
	return &testServer{Server: srv, store: store, registry: registry}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestServer_Evaluate(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	body, err := json.Marshal(EvaluateRequest{
		Dataset:      "energy",
		Observations: testObservations(48),
		Importance:   []domain.ImportanceEntry{{Feature: "lag_1", Importance: 0.2}, {Feature: "hour", Importance: 0.7}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate?top_k=1", bytes.NewReader(body))
	req.Header.Set(RequestIDHeader, "req-42")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	out := decodeBody(t, rec)
	assert.Equal(t, true, out["passed"])

	report := out["report"].(map[string]any)
	assert.Equal(t, float64(48), report["samples"])
	assert.Equal(t, []any{"Naive"}, report["baselines"])
	assert.Empty(t, report["failures"])

	importance := report["importance"].([]any)
	require.Len(t, importance, 1)
	assert.Equal(t, "hour", importance[0].(map[string]any)["feature"])

	board := report["leaderboard"].(map[string]any)
	entries := board["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, string(domain.MedianColumn), entries[0].(map[string]any)["model"])

	gates := out["gates"].([]any)
	assert.Len(t, gates, 3)
}

func TestServer_EvaluateErrors(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	rec := s.do(httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid request body")

	rec = s.do(httptest.NewRequest(http.MethodPost, "/evaluate?window=0", strings.NewReader("{}")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, err := json.Marshal(EvaluateRequest{
		Observations: testObservations(3),
		Baselines:    []string{string(domain.MedianColumn)},
	})
	require.NoError(t, err)
	rec = s.do(httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "baseline shadowing the primary column")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/evaluate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_EvaluateEmptyReportsFailures(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	rec := s.do(httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"observations": []}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeBody(t, rec)["report"].(map[string]any)
	assert.NotEmpty(t, report["failures"])
	assert.Nil(t, report["point_metrics"])
}

func TestServer_Upload(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("predictions", "predictions.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(predictionsCSV(testObservations(24))))
	require.NoError(t, err)
	part, err = mw.CreateFormFile("features", "features.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Feature,Importance\nlag_24,0.4\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("dataset", "energy"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/evaluate/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decodeBody(t, rec)["report"].(map[string]any)
	assert.Equal(t, float64(24), report["samples"])
	assert.Nil(t, report["leaderboard"], "no baselines uploaded")
	assert.Len(t, report["importance"], 1)
}

func TestServer_UploadRequiresPredictions(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("dataset", "energy"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/evaluate/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "predictions")
}

func TestServer_DatasetReport(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	ctx := context.Background()
	require.NoError(t, s.store.Put(ctx, "sites/energy/predictions.csv", strings.NewReader(predictionsCSV(testObservations(12)))))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/datasets/sites/energy/report", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody(t, rec)["report"].(map[string]any)
	assert.Equal(t, float64(12), report["samples"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/datasets/wind/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	body, err := json.Marshal(EvaluateRequest{Observations: testObservations(10)})
	require.NoError(t, err)
	rec := s.do(httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), evaluator.MetricEvaluations)
}

func TestServer_APIKey(t *testing.T) {
	s := newTestServer(t, ServerOptions{APIKey: "secret"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"observations": []}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, s.do(req).Code)
		})
	}

	// Health stays open.
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, ServerOptions{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"observations": []}`))
		codes = append(codes, s.do(req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"observations": []}`))
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	assert.Equal(t, http.StatusOK, s.do(req).Code)
}
