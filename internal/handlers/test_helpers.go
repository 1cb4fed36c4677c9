package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/kmccarthy/riskgate/internal/models"
	pkghttp "github.com/kmccarthy/riskgate/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithChiID injects a chi route parameter "id" into the request context
func WithChiID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockRiskService implements RiskServiceInterface for testing
type MockRiskService struct {
	AssessFunc         func(ctx context.Context, attempt models.LoginAttempt) (*models.Assessment, error)
	AccountEventsFunc  func(ctx context.Context, accountID string) ([]models.LoginEvent, error)
	AccountSummaryFunc func(ctx context.Context, accountID string) (*models.AccountSummary, error)
}

func (m *MockRiskService) Assess(ctx context.Context, attempt models.LoginAttempt) (*models.Assessment, error) {
	if m.AssessFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AssessFunc(ctx, attempt)
}

func (m *MockRiskService) AccountEvents(ctx context.Context, accountID string) ([]models.LoginEvent, error) {
	if m.AccountEventsFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AccountEventsFunc(ctx, accountID)
}

func (m *MockRiskService) AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	if m.AccountSummaryFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AccountSummaryFunc(ctx, accountID)
}
