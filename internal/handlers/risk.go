package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kmccarthy/riskgate/internal/models"
	pkghttp "github.com/kmccarthy/riskgate/pkg/http"
)

// RiskServiceInterface defines the interface for the scoring business logic
type RiskServiceInterface interface {
	Assess(ctx context.Context, attempt models.LoginAttempt) (*models.Assessment, error)
	AccountEvents(ctx context.Context, accountID string) ([]models.LoginEvent, error)
	AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error)
}

// RiskHandler handles the scoring HTTP surface consumed by the
// upstream authentication layer.
type RiskHandler struct {
	service RiskServiceInterface
}

// NewRiskHandler creates a new RiskHandler
func NewRiskHandler(service RiskServiceInterface) *RiskHandler {
	return &RiskHandler{service: service}
}

// AssessRequest represents the request body for a scoring call. The
// caller has already authenticated the account; this is not a login
// endpoint.
type AssessRequest struct {
	AccountID string  `json:"account_id" validate:"required,min=1"`
	ClientIP  string  `json:"client_ip" validate:"required"`
	UserAgent string  `json:"user_agent"`
	RTTMillis float64 `json:"rtt_millis" validate:"gte=0"`
}

// AssessResponse is the scoring outcome returned to the caller.
type AssessResponse struct {
	Score   float64              `json:"score"`
	Action  models.Action        `json:"action"`
	Factors []models.FactorScore `json:"factors,omitempty"`
}

// Assess handles POST /v1/assess
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid JSON body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	assessment, err := h.service.Assess(r.Context(), models.LoginAttempt{
		AccountID: req.AccountID,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
		RTTMillis: req.RTTMillis,
	})
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "risk assessment failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AssessResponse{
		Score:   assessment.Score,
		Action:  assessment.Action,
		Factors: assessment.Factors,
	})
}

// AccountEvents handles GET /v1/accounts/{id}/events
func (h *RiskHandler) AccountEvents(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	events, err := h.service.AccountEvents(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []models.LoginEvent{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"events":     events,
	})
}

// AccountSummary handles GET /v1/accounts/{id}/summary
func (h *RiskHandler) AccountSummary(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	summary, err := h.service.AccountSummary(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "request failed")
	}
}
