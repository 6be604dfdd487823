package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"formagent/internal/apperr"
	"formagent/internal/domain"
	"formagent/internal/service"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Ask(ctx context.Context, question string) (domain.AnswerRecord, error) {
	args := m.Called(ctx, question)
	return args.Get(0).(domain.AnswerRecord), args.Error(1)
}

func (m *MockAnswerer) Analyze(ctx context.Context, question string) (domain.AnswerRecord, error) {
	args := m.Called(ctx, question)
	return args.Get(0).(domain.AnswerRecord), args.Error(1)
}

func (m *MockAnswerer) Summarize(ctx context.Context, documentName string) (domain.AnswerRecord, error) {
	args := m.Called(ctx, documentName)
	return args.Get(0).(domain.AnswerRecord), args.Error(1)
}

func (m *MockAnswerer) Documents() []service.DocumentInfo {
	args := m.Called()
	return args.Get(0).([]service.DocumentInfo)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleAsk(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Ask", mock.Anything, "What is the total on A?").Return(domain.AnswerRecord{
		Mode:   domain.ModeAsk,
		Query:  "What is the total on A?",
		Answer: "$500",
		Sources: []domain.Passage{
			{Text: "Invoice total: $500, due 2024-01-15", SourceID: "data/A.pdf", PageNumber: 1},
		},
	}, nil)

	h := NewHandler(engine, nil).Routes(0)
	rec := do(t, h, http.MethodPost, "/api/v1/ask", `{"question":"What is the total on A?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ask", resp.Mode)
	assert.Equal(t, "$500", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "A.pdf", resp.Sources[0].Name)
	assert.Equal(t, "Invoice total: $500, due 2024-01-15", resp.Sources[0].Preview)
	assert.Nil(t, resp.Error)
	engine.AssertExpectations(t)
}

func TestHandleAnalyze_FailureRecordIs200(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Analyze", mock.Anything, "total of all invoices").Return(domain.AnswerRecord{
		Mode:   domain.ModeAnalyze,
		Query:  "total of all invoices",
		Answer: "Sorry, I couldn't produce an answer",
		Err:    apperr.GenerationFailure("generation timed out after 2m0s", errors.New("deadline")),
	}, nil)

	rec := do(t, NewHandler(engine, nil).Routes(0), http.MethodPost, "/api/v1/analyze", `{"question":"total of all invoices"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "generation_failure", resp.Error.Type)
	assert.Empty(t, resp.Sources)
}

func TestHandleQuestion_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"question":`},
		{name: "missing question", body: `{}`},
		{name: "question too long", body: `{"question":"` + strings.Repeat("x", 4001) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockAnswerer)
			rec := do(t, NewHandler(engine, nil).Routes(0), http.MethodPost, "/api/v1/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			engine.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleAsk_EngineRejection(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Ask", mock.Anything, "   ").Return(domain.AnswerRecord{}, apperr.InvalidArgument("question must not be empty"))

	rec := do(t, NewHandler(engine, nil).Routes(0), http.MethodPost, "/api/v1/ask", `{"question":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_argument")
}

func TestHandleSummarize(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Summarize", mock.Anything, "nonexistent-doc").Return(domain.AnswerRecord{
		Mode:   domain.ModeSummarize,
		Query:  "nonexistent-doc",
		Answer: "No document found matching 'nonexistent-doc'",
		Err:    apperr.NotFound("No document found matching 'nonexistent-doc'"),
	}, nil)
	engine.On("Summarize", mock.Anything, "").Return(domain.AnswerRecord{Mode: domain.ModeSummarize, Answer: "Two invoices."}, nil)

	h := NewHandler(engine, nil).Routes(0)

	rec := do(t, h, http.MethodPost, "/api/v1/summarize", `{"document":"nonexistent-doc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Type)

	rec = do(t, h, http.MethodPost, "/api/v1/summarize", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Two invoices.")
	engine.AssertExpectations(t)
}

func TestHandleDocumentsAndHealth(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Documents").Return([]service.DocumentInfo{
		{SourceID: "A.pdf", Name: "A.pdf", Pages: 1, Passages: 1},
	})
	h := NewHandler(engine, nil).Routes(0)

	rec := do(t, h, http.MethodGet, "/api/v1/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents []service.DocumentInfo `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Documents, 1)
	assert.Equal(t, "A.pdf", body.Documents[0].SourceID)

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":1`)
}
