package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"formagent/internal/apperr"
	"formagent/internal/domain"
	"formagent/internal/service"
)

// PreviewChars is the length of the source previews in responses.
const PreviewChars = 200

// Answerer is the part of the engine the API exposes.
type Answerer interface {
	Ask(ctx context.Context, question string) (domain.AnswerRecord, error)
	Analyze(ctx context.Context, question string) (domain.AnswerRecord, error)
	Summarize(ctx context.Context, documentName string) (domain.AnswerRecord, error)
	Documents() []service.DocumentInfo
}

// QuestionRequest is the body of ask and analyze calls.
type QuestionRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// SummarizeRequest is the body of summarize calls. An empty document
// summarises the whole collection.
type SummarizeRequest struct {
	Document string `json:"document" validate:"max=1024"`
}

// SourceResponse describes one passage an answer was based on.
type SourceResponse struct {
	SourceID   string `json:"source_id"`
	Name       string `json:"name"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

// ErrorResponse is the error part of a response.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnswerResponse is the JSON form of an answer record.
type AnswerResponse struct {
	Mode    string           `json:"mode"`
	Query   string           `json:"query"`
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
	Error   *ErrorResponse   `json:"error,omitempty"`
}

// Handler serves the answering API.
type Handler struct {
	engine   Answerer
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(engine Answerer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, validate: validator.New(), logger: logger}
}

// Routes builds the router. timeout bounds each request.
func (h *Handler) Routes(timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", h.HandleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", h.HandleAsk)
		r.Post("/analyze", h.HandleAnalyze)
		r.Post("/summarize", h.HandleSummarize)
		r.Get("/documents", h.HandleDocuments)
	})
	return r
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": len(h.engine.Documents()),
	})
}

// HandleAsk handles POST /api/v1/ask
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	h.handleQuestion(w, r, h.engine.Ask)
}

// HandleAnalyze handles POST /api/v1/analyze
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	h.handleQuestion(w, r, h.engine.Analyze)
}

func (h *Handler) handleQuestion(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (domain.AnswerRecord, error)) {
	var req QuestionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := run(r.Context(), req.Question)
	h.respond(w, r, rec, err)
}

// HandleSummarize handles POST /api/v1/summarize
func (h *Handler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.engine.Summarize(r.Context(), req.Document)
	h.respond(w, r, rec, err)
}

// HandleDocuments handles GET /api/v1/documents
func (h *Handler) HandleDocuments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"documents": h.engine.Documents()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, apperr.InvalidArgument("invalid JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.ErrorTypeInvalidArgument, "validation failed", err))
		return false
	}
	return true
}

// respond writes rec. Failures the engine reports inside the record are
// still answers and use 200; only rejected input maps to an HTTP error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, rec domain.AnswerRecord, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrInvalidArgument) {
			status = http.StatusBadRequest
		} else {
			h.logger.Error("request failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func toResponse(rec domain.AnswerRecord) AnswerResponse {
	resp := AnswerResponse{
		Mode:    string(rec.Mode),
		Query:   rec.Query,
		Answer:  rec.Answer,
		Sources: make([]SourceResponse, 0, len(rec.Sources)),
	}
	for _, p := range rec.Sources {
		resp.Sources = append(resp.Sources, SourceResponse{
			SourceID:   p.SourceID,
			Name:       filepath.Base(p.SourceID),
			PageNumber: p.PageNumber,
			ChunkIndex: p.ChunkIndex,
			Preview:    p.Preview(PreviewChars),
		})
	}
	if rec.Err != nil {
		resp.Error = errorBody(rec.Err)
	}
	return resp
}

func errorBody(err error) *ErrorResponse {
	var de *apperr.DomainError
	if errors.As(err, &de) {
		return &ErrorResponse{Type: string(de.Type), Message: de.Message}
	}
	return &ErrorResponse{Type: "internal", Message: err.Error()}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": errorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
