package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmccarthy/riskgate/internal/features"
	"github.com/kmccarthy/riskgate/internal/geo"
	"github.com/kmccarthy/riskgate/internal/models"
	"github.com/kmccarthy/riskgate/internal/policy"
	"github.com/kmccarthy/riskgate/internal/risk"
	"github.com/kmccarthy/riskgate/internal/services"
)

const chromeLinuxUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fakeStore implements services.HistoryStore in memory.
type fakeStore struct {
	global    *models.GlobalHistory
	accounts  map[string]*models.AccountHistory
	recorded  []*models.LoginEvent
	readErr   error
	recordErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		global:   models.NewGlobalHistory(),
		accounts: make(map[string]*models.AccountHistory),
	}
}

func (f *fakeStore) Global(ctx context.Context) (*models.GlobalHistory, error) {
	return f.global.Clone(), f.readErr
}

func (f *fakeStore) Account(ctx context.Context, accountID string) (*models.AccountHistory, error) {
	if h, ok := f.accounts[accountID]; ok {
		return h.Clone(), f.readErr
	}
	return models.NewAccountHistory(accountID), f.readErr
}

func (f *fakeStore) RecordLogin(ctx context.Context, event *models.LoginEvent) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, event)
	return nil
}

// fakeEvents implements services.EventReader.
type fakeEvents struct {
	events  []models.LoginEvent
	summary *models.AccountSummary
	err     error
}

func (f *fakeEvents) RecentEvents(ctx context.Context, accountID string, limit int) ([]models.LoginEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeEvents) AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	return f.summary, f.err
}

func newTestService(store services.HistoryStore, events services.EventReader) *services.RiskService {
	extractor := features.NewExtractor(&geo.Static{
		ASNs:      map[string]string{"203.0.113.9": "AS9999", "198.51.100.7": "AS64500"},
		Countries: map[string]string{"203.0.113.9": "KP", "198.51.100.7": "DE"},
	})
	scorer := risk.NewScorer(risk.Params{
		Weights:            risk.Weights{IP: 0.5, UA: 0.3, RTT: 0.2},
		SmoothingAlpha:     1.0,
		MaliciousASNs:      map[string]bool{"AS9999": true},
		MaliciousCountries: map[string]bool{"KP": true},
		MinBrowserVersions: map[string]int{"Chrome": 85, "Firefox": 78},
	})
	engine, err := policy.NewEngine(0.7, 0.4)
	if err != nil {
		panic(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return services.NewRiskService(extractor, store, events, scorer, engine, 2*time.Second, logger)
}

func TestAssess_LocalKnownBrowserAllowed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "alice",
		ClientIP:  "127.0.0.1",
		UserAgent: chromeLinuxUA,
		RTTMillis: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ActionAllow, assessment.Action)
	assert.Less(t, assessment.Score, 0.4)
	assert.Len(t, assessment.Factors, 3)
}

func TestAssess_HostileSignalsRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "mallory",
		ClientIP:  "203.0.113.9",
		UserAgent: "",
		RTTMillis: 900,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ActionReject, assessment.Action)
	assert.Greater(t, assessment.Score, 0.7)
}

func TestAssess_RecordsLoginEvent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "alice",
		ClientIP:  "198.51.100.7",
		UserAgent: chromeLinuxUA,
		RTTMillis: 120,
	})

	require.NoError(t, err)
	require.Len(t, store.recorded, 1)

	event := store.recorded[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "alice", event.AccountID)
	assert.Equal(t, "198.51.100.7", event.Features.IP.IP)
	assert.Equal(t, "AS64500", event.Features.IP.ASN)
	assert.Equal(t, assessment.Score, event.RiskScore)
	assert.Equal(t, assessment.Action, event.Action)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestAssess_MissingAccountID(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEvents{})

	_, err := svc.Assess(context.Background(), models.LoginAttempt{
		ClientIP: "198.51.100.7",
	})

	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.ErrorIs(t, err, models.ErrMissingAccountID)
}

func TestAssess_DegradedStoreStillScores(t *testing.T) {
	store := newFakeStore()
	store.readErr = models.ErrStoreUnavailable
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "alice",
		ClientIP:  "127.0.0.1",
		UserAgent: chromeLinuxUA,
		RTTMillis: 50,
	})

	require.NoError(t, err, "history unavailability must not abort scoring")
	assert.Equal(t, models.ActionAllow, assessment.Action)
}

func TestAssess_RecordFailureDoesNotAbort(t *testing.T) {
	store := newFakeStore()
	store.recordErr = errors.New("db down")
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "alice",
		ClientIP:  "127.0.0.1",
		UserAgent: chromeLinuxUA,
		RTTMillis: 50,
	})

	require.NoError(t, err)
	assert.NotNil(t, assessment)
}

func TestAssess_MalformedInputsStillScore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{})

	assessment, err := svc.Assess(context.Background(), models.LoginAttempt{
		AccountID: "alice",
		ClientIP:  "not-an-ip",
		UserAgent: "definitely not a browser",
		RTTMillis: -3,
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, assessment.Score, 0.0)
	assert.LessOrEqual(t, assessment.Score, 1.0)
}

func TestAccountEvents_LimitApplied(t *testing.T) {
	events := make([]models.LoginEvent, 80)
	for i := range events {
		events[i] = models.LoginEvent{ID: "ev", AccountID: "alice"}
	}
	svc := newTestService(newFakeStore(), &fakeEvents{events: events})

	got, err := svc.AccountEvents(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestAccountEvents_MissingAccountID(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeEvents{})

	_, err := svc.AccountEvents(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAccountSummary_Passthrough(t *testing.T) {
	summary := &models.AccountSummary{AccountID: "alice", TotalLogins: 12}
	svc := newTestService(newFakeStore(), &fakeEvents{summary: summary})

	got, err := svc.AccountSummary(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.TotalLogins)
}
