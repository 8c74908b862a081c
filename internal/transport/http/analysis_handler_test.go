package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/cache"
	"salespulse/internal/config"
	apierrors "salespulse/internal/errors"
	"salespulse/internal/services"
	"salespulse/internal/shared/testutil"
	"salespulse/pkg/contracts/domain"
)

func newTestRouter(t *testing.T) (http.Handler, *cache.MemoryStore) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	store := cache.NewMemoryStore(100, 0)
	resultCache := cache.New(store, cache.Options{TTL: time.Minute}, logger)
	svc, err := services.NewAnalysisService(config.Default(), resultCache, nil, logger)
	require.NoError(t, err)

	handler := NewAnalysisHandler(svc, logger, apierrors.NewErrorHandler(logger, false))
	r := chi.NewRouter()
	r.Mount("/api/v1", handler.Routes())
	return r, store
}

// uploadRequest builds a multipart POST carrying content as the upload field
func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(config.UploadFormField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestAnalysisHandler_Analyze(t *testing.T) {
	router, store := newTestRouter(t)
	raw := testutil.DefaultSalesCSV()

	rec := serve(router, uploadRequest(t, "/api/v1/analyze", "sales.csv", raw))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, cache.Fingerprint(raw), result.Fingerprint)
	assert.False(t, result.FromCache)
	require.NotNil(t, result.KPIs)
	assert.InDelta(t, 3840.0, result.KPIs.RevenueTotal, 1e-9)

	_, ok := store.Entry(cache.Key(result.Fingerprint, domain.KindFull))
	assert.True(t, ok)

	rec = serve(router, uploadRequest(t, "/api/v1/analyze", "sales.csv", raw))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["from_cache"])
}

func TestAnalysisHandler_AnalyzeErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "invalid dataset",
			req: func() *http.Request {
				return uploadRequest(t, "/api/v1/analyze", "sales.csv", []byte("date,product,price\n2024-01-01,Pen,2\n"))
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   string(apierrors.ErrTypeValidation),
		},
		{
			name: "unreadable file",
			req: func() *http.Request {
				return uploadRequest(t, "/api/v1/analyze", "sales.csv", []byte("\n"))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(apierrors.ErrTypeParsing),
		},
		{
			name: "top_n out of range",
			req: func() *http.Request {
				return uploadRequest(t, "/api/v1/analyze?top_n=0", "sales.csv", testutil.DefaultSalesCSV())
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name: "bad use_cache",
			req: func() *http.Request {
				return uploadRequest(t, "/api/v1/analyze?use_cache=sometimes", "sales.csv", testutil.DefaultSalesCSV())
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name: "missing file field",
			req: func() *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				require.NoError(t, mw.WriteField("note", "no file here"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name: "json body",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "UNSUPPORTED_MEDIA_TYPE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.req())
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantCode, body["error_code"])
			assert.EqualValues(t, tt.wantStatus, body["status"])
		})
	}
}

func TestAnalysisHandler_InvalidDatasetCarriesReport(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "/api/v1/analyze", "sales.csv", []byte("date,product,price\n2024-01-01,Pen,2\n")))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody(t, rec)
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok, "details missing: %s", rec.Body.String())
	report, ok := details["validation_report"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, report["is_valid"])
}

func TestAnalysisHandler_Validate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "/api/v1/validate", "sales.csv", testutil.DefaultSalesCSV()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["is_valid"])

	// a rejected dataset is still a successful validation request
	rec = serve(router, uploadRequest(t, "/api/v1/validate", "sales.csv", []byte("date,product\n2024-01-01,Pen\n")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeBody(t, rec)["is_valid"])
}

func TestAnalysisHandler_Statistics(t *testing.T) {
	router, store := newTestRouter(t)
	raw := testutil.DefaultSalesCSV()

	rec := serve(router, uploadRequest(t, "/api/v1/statistics", "sales.csv", raw))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report domain.StatisticsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 8, report.Overview.Rows)

	_, ok := store.Entry(cache.Key(cache.Fingerprint(raw), domain.KindStats))
	assert.True(t, ok)
}

func TestAnalysisHandler_Cohorts(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "/api/v1/cohorts", "sales.csv", testutil.DefaultSalesCSV()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var table domain.Table
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, 5, table.NumRows())

	rec = serve(router, uploadRequest(t, "/api/v1/cohorts?customer_column=buyer", "sales.csv", testutil.DefaultSalesCSV()))
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
}

func TestAnalysisHandler_CacheEndpoints(t *testing.T) {
	router, store := newTestRouter(t)
	raw := testutil.DefaultSalesCSV()
	fingerprint := cache.Fingerprint(raw)

	rec := serve(router, uploadRequest(t, "/api/v1/analyze", "sales.csv", raw))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("stats", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "memory", body["backend"])
		assert.Equal(t, true, body["available"])
	})

	t.Run("invalidate rejects malformed fingerprint", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/cache/XYZ", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalidate upload", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/cache/"+fingerprint, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp InvalidateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, fingerprint, resp.Fingerprint)
		assert.Positive(t, resp.Removed)

		_, ok := store.Entry(cache.Key(fingerprint, domain.KindKPIs))
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		serve(router, uploadRequest(t, "/api/v1/analyze", "sales.csv", raw))
		rec := serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, ok := store.Entry(cache.Key(fingerprint, domain.KindFull))
		assert.False(t, ok)
	})
}

func TestHealthHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	resultCache := cache.New(cache.NewMemoryStore(10, 0), cache.Options{}, logger)
	h := NewHealthHandler(services.NewHealthService("1.2.3", "today", resultCache, logger), logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])

	rec = httptest.NewRecorder()
	h.Version(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", decodeBody(t, rec)["version"])
}
