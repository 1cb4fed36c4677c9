package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kmccarthy/riskgate/internal/features"
	"github.com/kmccarthy/riskgate/internal/models"
	"github.com/kmccarthy/riskgate/internal/policy"
	"github.com/kmccarthy/riskgate/internal/risk"
)

// HistoryStore defines the interface for the history cache the
// orchestrator reads from and writes through.
type HistoryStore interface {
	Global(ctx context.Context) (*models.GlobalHistory, error)
	Account(ctx context.Context, accountID string) (*models.AccountHistory, error)
	RecordLogin(ctx context.Context, event *models.LoginEvent) error
}

// EventReader defines the interface for the event-log read models the
// HTTP surface exposes.
type EventReader interface {
	RecentEvents(ctx context.Context, accountID string, limit int) ([]models.LoginEvent, error)
	AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error)
}

// recentEventLimit caps the event-history query, matching the audit
// view the operators work with.
const recentEventLimit = 50

// RiskService sequences one scoring cycle per login attempt: extract,
// read histories, score, decide, record. It is the only component that
// faces the external authentication middleware and is intentionally
// thin.
type RiskService struct {
	extractor *features.Extractor
	store     HistoryStore
	events    EventReader
	scorer    *risk.Scorer
	policy    *policy.Engine
	logger    *slog.Logger
	timeout   time.Duration
}

// NewRiskService creates a new RiskService.
func NewRiskService(
	extractor *features.Extractor,
	store HistoryStore,
	events EventReader,
	scorer *risk.Scorer,
	policyEngine *policy.Engine,
	timeout time.Duration,
	logger *slog.Logger,
) *RiskService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RiskService{
		extractor: extractor,
		store:     store,
		events:    events,
		scorer:    scorer,
		policy:    policyEngine,
		logger:    logger,
		timeout:   timeout,
	}
}

// Assess scores one login attempt and records the outcome. Nothing on
// this path aborts the caller's login flow: storage failures degrade to
// cached or zero state, numeric failures fail closed inside the scorer.
// The only hard error is a missing account ID, which is a contract
// violation by the caller.
func (s *RiskService) Assess(ctx context.Context, attempt models.LoginAttempt) (*models.Assessment, error) {
	if attempt.AccountID == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrBadRequest, models.ErrMissingAccountID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	featureSet := s.extractor.Extract(attempt.ClientIP, attempt.UserAgent, attempt.RTTMillis)

	global, err := s.store.Global(ctx)
	if err != nil && errors.Is(err, models.ErrStoreUnavailable) {
		s.logger.Warn("scoring with degraded global history",
			slog.String("account_id", attempt.AccountID))
	}

	account, err := s.store.Account(ctx, attempt.AccountID)
	if err != nil && errors.Is(err, models.ErrStoreUnavailable) {
		s.logger.Warn("scoring with degraded account history",
			slog.String("account_id", attempt.AccountID))
	}

	score, factors := s.scorer.Score(featureSet, global, account)
	action := s.policy.Decide(score)
	now := time.Now().UTC()

	event := &models.LoginEvent{
		ID:        uuid.NewString(),
		AccountID: attempt.AccountID,
		Features:  featureSet,
		RiskScore: score,
		Action:    action,
		CreatedAt: now,
	}
	if err := s.store.RecordLogin(ctx, event); err != nil {
		s.logger.Error("failed to record login event",
			slog.String("account_id", attempt.AccountID),
			slog.Any("error", err))
	}

	s.logger.Info("login assessed",
		slog.String("account_id", attempt.AccountID),
		slog.Float64("score", score),
		slog.String("action", string(action)))

	return &models.Assessment{
		AccountID:  attempt.AccountID,
		Score:      score,
		Action:     action,
		Factors:    factors,
		AssessedAt: now,
	}, nil
}

// AccountEvents returns the account's most recent scoring events.
func (s *RiskService) AccountEvents(ctx context.Context, accountID string) ([]models.LoginEvent, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrBadRequest, models.ErrMissingAccountID)
	}
	return s.events.RecentEvents(ctx, accountID, recentEventLimit)
}

// AccountSummary returns the aggregated activity view for an account.
func (s *RiskService) AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrBadRequest, models.ErrMissingAccountID)
	}
	return s.events.AccountSummary(ctx, accountID)
}
