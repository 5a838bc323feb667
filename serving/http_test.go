package serving_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartml/pipeline"
	"github.com/YuminosukeSato/heartml/pipeline/pipelinetest"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/serving"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func do(t *testing.T, router http.Handler, method, target string, body []byte, header map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return w, out
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHealthEndpoint(t *testing.T) {
	svc, path := newService(t)
	router := serving.NewRouter(svc, quietLogger())

	w, body := do(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, path, body["model_path"])
	assert.NotContains(t, body, "error")
}

func TestHealthEndpointDegradedIsStill200(t *testing.T) {
	svc := serving.NewService(filepath.Join(t.TempDir(), "missing.gob"), serving.WithLogger(quietLogger()))
	router := serving.NewRouter(svc, quietLogger())

	w, body := do(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["model_loaded"])
	assert.NotEmpty(t, body["error"])
}

func TestPredictEndpoint(t *testing.T) {
	svc, path := newService(t)
	router := serving.NewRouter(svc, quietLogger())

	w, body := do(t, router, http.MethodPost, "/predict", mustJSON(t, pipelinetest.SampleRecord()), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	confidence, ok := body["confidence"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
	assert.Contains(t, []interface{}{0.0, 1.0}, body["prediction"])
	assert.Equal(t, path, body["model_path"])
	assert.NotEmpty(t, w.Header().Get(serving.RequestIDHeader))
}

func TestPredictEndpointValidation(t *testing.T) {
	svc, _ := newService(t)
	router := serving.NewRouter(svc, quietLogger())

	with := func(mutate func(map[string]interface{})) []byte {
		r := pipelinetest.SampleRecord()
		mutate(r)
		return mustJSON(t, r)
	}

	tests := []struct {
		name string
		body []byte
	}{
		{"missing field", with(func(r map[string]interface{}) { delete(r, "age") })},
		{"unknown field", with(func(r map[string]interface{}) { r["smoker"] = 1 })},
		{"string value", with(func(r map[string]interface{}) { r["age"] = "63" })},
		{"null value", with(func(r map[string]interface{}) { r["thal"] = nil })},
		{"boolean value", with(func(r map[string]interface{}) { r["fbs"] = true })},
		{"array body", []byte(`[1, 2, 3]`)},
		{"malformed json", []byte(`{"age": `)},
		{"empty object", []byte(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, router, http.MethodPost, "/predict", tt.body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Equal(t, serving.ErrKindValidation, body["error"])
			assert.NotEmpty(t, body["details"])
		})
	}
}

func TestPredictEndpointModelMissing(t *testing.T) {
	svc := serving.NewService(filepath.Join(t.TempDir(), "missing.gob"), serving.WithLogger(quietLogger()))
	router := serving.NewRouter(svc, quietLogger())

	w, body := do(t, router, http.MethodPost, "/predict", mustJSON(t, pipelinetest.SampleRecord()), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, serving.ErrKindModelUnavailable, body["error"])
}

func TestPredictEndpointInternalErrorIsReportedAndLogged(t *testing.T) {
	path := pipelinetest.TrainArtifact(t, t.TempDir())
	logger, _ := log.NewTestLogger(log.LevelInfo)
	narrow := func(p string) (*pipeline.Pipeline, error) {
		pl, err := pipeline.Load(p)
		if err != nil {
			return nil, err
		}
		pl.Scaler.NFeatures = 12
		pl.Scaler.Mean = pl.Scaler.Mean[:12]
		pl.Scaler.Scale = pl.Scaler.Scale[:12]
		return pl, nil
	}
	svc := serving.NewService(path, serving.WithLogger(logger), serving.WithLoader(narrow))
	router := serving.NewRouter(svc, quietLogger())

	w, body := do(t, router, http.MethodPost, "/predict", mustJSON(t, pipelinetest.SampleRecord()), nil)
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	assert.Equal(t, serving.ErrKindInternal, body["error"])
	details, _ := body["details"].(string)
	assert.Contains(t, details, "prediction failed: ")
	assert.Contains(t, details, "dimension")

	assert.True(t, logger.ContainsMessage("Prediction failed"))
	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	var logged string
	for _, e := range entries {
		if e["message"] == "Prediction failed" {
			logged, _ = e["error"].(string)
		}
	}
	assert.Contains(t, logged, "dimension")
}

func TestPredictEndpointLogsInputOfRejectedRequest(t *testing.T) {
	_, path := newService(t)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	svc := serving.NewService(path, serving.WithLogger(logger))
	router := serving.NewRouter(svc, quietLogger())

	record := pipelinetest.SampleRecord()
	delete(record, "chol")
	w, body := do(t, router, http.MethodPost, "/predict", mustJSON(t, record),
		map[string]string{serving.RequestIDHeader: "no-chol"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, serving.ErrKindValidation, body["error"])

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	var input map[string]interface{}
	for _, e := range entries {
		if e["message"] == "Prediction request" && e[log.RequestIDKey] == "no-chol" {
			input, _ = e[log.InputKey].(map[string]interface{})
		}
	}
	require.NotNil(t, input, "request input was not logged")
	assert.Contains(t, input, "age")
	assert.NotContains(t, input, "chol")
	assert.False(t, logger.ContainsMessage("Prediction failed"))
}

func TestRequestIDPropagates(t *testing.T) {
	path := pipelinetest.TrainArtifact(t, t.TempDir())
	logger, _ := log.NewTestLogger(log.LevelInfo)
	svc := serving.NewService(path, serving.WithLogger(logger))
	router := serving.NewRouter(svc, logger)

	w, _ := do(t, router, http.MethodPost, "/predict", mustJSON(t, pipelinetest.SampleRecord()),
		map[string]string{serving.RequestIDHeader: "abc-123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(serving.RequestIDHeader))

	assert.True(t, logger.ContainsMessage("Prediction served"))
	assert.True(t, logger.ContainsMessage("HTTP request"))
	assert.True(t, logger.ContainsField(log.RequestIDKey, "abc-123"))
	assert.True(t, logger.ContainsField(log.RouteKey, "/predict"))
}

func TestPanickingLoggerDoesNotFailRequest(t *testing.T) {
	path := pipelinetest.TrainArtifact(t, t.TempDir())
	svc := serving.NewService(path, serving.WithLogger(panicLogger{}))
	router := serving.NewRouter(svc, panicLogger{})

	w, body := do(t, router, http.MethodPost, "/predict", mustJSON(t, pipelinetest.SampleRecord()), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "confidence")
}
