package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"salespulse/internal/config"
	apierrors "salespulse/internal/errors"
	custommw "salespulse/internal/middleware"
	"salespulse/internal/services"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk
const multipartMemory = 32 << 20

// analyzeParams are the query parameters of the analysis endpoints
type analyzeParams struct {
	UseCache bool          `query:"use_cache"`
	TopN     int           `query:"top_n" validate:"gte=1,lte=1000"`
	TTL      time.Duration `query:"ttl" validate:"gte=0"`
}

type cohortParams struct {
	CustomerColumn string `query:"customer_column" validate:"required,max=128"`
}

type fingerprintParams struct {
	Fingerprint string `validate:"required,fingerprint"`
}

// InvalidateResponse reports how many cache entries were removed
type InvalidateResponse struct {
	Fingerprint string `json:"fingerprint"`
	Removed     int    `json:"removed"`
}

// AnalysisHandler handles upload analysis and cache administration requests
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	validator    *custommw.RequestValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler with RFC 7807 error handling
func NewAnalysisHandler(service AnalysisServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		validator:    custommw.NewRequestValidator(logger),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "analysis_handler")),
	}
}

// Routes returns the analysis routes, mounted under /api/v1
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Group(func(r chi.Router) {
		r.Use(custommw.ContentTypeValidator(h.errorHandler, "multipart/form-data"))
		r.Post("/analyze", h.Analyze)
		r.Post("/validate", h.Validate)
		r.Post("/statistics", h.Statistics)
		r.Post("/cohorts", h.Cohorts)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", h.CacheStats)
		r.Delete("/", h.ClearCache)
		r.Delete("/{fingerprint}", h.InvalidateUpload)
	})

	return r
}

// Analyze handles POST /api/v1/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.analyzeOptions(w, r)
	if !ok {
		return
	}
	raw, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.service.Analyze(r.Context(), raw, filename, opts)
	if err != nil {
		h.fail(w, r, "analysis failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "analysis served",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("fingerprint", result.Fingerprint),
		slog.Bool("from_cache", result.FromCache))
	render.JSON(w, r, result)
}

// Validate handles POST /api/v1/validate. An invalid dataset is still a
// successful request; the report says what is wrong.
func (h *AnalysisHandler) Validate(w http.ResponseWriter, r *http.Request) {
	raw, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	report, err := h.service.Validate(r.Context(), raw, filename)
	if err != nil {
		h.fail(w, r, "validation failed", err)
		return
	}
	render.JSON(w, r, report)
}

// Statistics handles POST /api/v1/statistics
func (h *AnalysisHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.analyzeOptions(w, r)
	if !ok {
		return
	}
	raw, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	report, err := h.service.Statistics(r.Context(), raw, filename, opts)
	if err != nil {
		h.fail(w, r, "statistics failed", err)
		return
	}
	render.JSON(w, r, report)
}

// Cohorts handles POST /api/v1/cohorts
func (h *AnalysisHandler) Cohorts(w http.ResponseWriter, r *http.Request) {
	params := cohortParams{CustomerColumn: "customer_id"}
	if err := h.validator.DecodeQuery(r, &params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	raw, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	table, err := h.service.Cohorts(r.Context(), raw, filename, params.CustomerColumn)
	if err != nil {
		h.fail(w, r, "cohort analysis failed", err)
		return
	}
	render.JSON(w, r, table)
}

// CacheStats handles GET /api/v1/cache/stats
func (h *AnalysisHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.CacheStats(r.Context()))
}

// ClearCache handles DELETE /api/v1/cache
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCache(r.Context()); err != nil {
		h.fail(w, r, "cache clear failed", err)
		return
	}
	render.NoContent(w, r)
}

// InvalidateUpload handles DELETE /api/v1/cache/{fingerprint}
func (h *AnalysisHandler) InvalidateUpload(w http.ResponseWriter, r *http.Request) {
	params := fingerprintParams{Fingerprint: chi.URLParam(r, "fingerprint")}
	if err := h.validator.ValidateStruct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	removed, err := h.service.InvalidateUpload(r.Context(), params.Fingerprint)
	if err != nil {
		h.fail(w, r, "cache invalidation failed", err)
		return
	}
	render.JSON(w, r, InvalidateResponse{Fingerprint: params.Fingerprint, Removed: removed})
}

func (h *AnalysisHandler) analyzeOptions(w http.ResponseWriter, r *http.Request) (services.AnalyzeOptions, bool) {
	defaults := h.service.DefaultOptions()
	params := analyzeParams{UseCache: defaults.UseCache, TopN: defaults.TopN, TTL: defaults.TTL}
	if err := h.validator.DecodeQuery(r, &params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return services.AnalyzeOptions{}, false
	}
	return services.AnalyzeOptions{UseCache: params.UseCache, TopN: params.TopN, TTL: params.TTL}, true
}

// readUpload returns the bytes and name of the multipart file field
func (h *AnalysisHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.errorHandler.HandleError(w, r, uploadError(err))
		return nil, "", false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(config.UploadFormField)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation(config.UploadFormField, "a file upload is required"))
		return nil, "", false
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.errorHandler.HandleError(w, r, uploadError(err))
		return nil, "", false
	}

	h.logger.DebugContext(r.Context(), "upload received",
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(raw)))
	return raw, header.Filename, true
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			"Uploaded file is too large", map[string]interface{}{"max_size": tooLarge.Limit})
	}
	return apierrors.InvalidRequestWithError(err)
}

func (h *AnalysisHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	h.errorHandler.HandleError(w, r, err)
}
