package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmccarthy/riskgate/internal/models"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()
	_ = db.Teardown(ctx)
	os.Exit(code)
}

func requireDB(t *testing.T) *TestDB {
	t.Helper()
	if testDB == nil {
		t.Skip("set INTEGRATION=1 to run database integration tests")
	}
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
	return testDB
}

func newEvent(accountID, ip, country string, createdAt time.Time) *models.LoginEvent {
	return &models.LoginEvent{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Features: models.FeatureSet{
			IP: models.IPFeature{IP: ip, ASN: "AS64500", CountryCode: country},
			UA: models.UAFeature{
				BrowserName:         "Chrome",
				BrowserMajorVersion: "120",
				OSVersion:           "10.0",
				DeviceClass:         models.DeviceDesktop,
			},
			RTTMillis: 100,
			RTTBucket: "100",
		},
		RiskScore: 0.2,
		Action:    models.ActionAllow,
		CreatedAt: createdAt,
	}
}

func TestRecordLogin_RoundTrip(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "198.51.100.7", "DE", now)))
	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "198.51.100.7", "DE", now.Add(time.Second))))
	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "203.0.113.9", "FR", now.Add(2*time.Second))))

	hist, err := db.Repo.AccountHistory(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(3), hist.LoginCount)
	assert.Equal(t, int64(2), hist.Counters.Count(models.FeatureIP, "198.51.100.7"))
	assert.Equal(t, int64(1), hist.Counters.Count(models.FeatureIP, "203.0.113.9"))
	assert.Equal(t, int64(2), hist.Counters.Count(models.FeatureCountry, "DE"))
	assert.Equal(t, int64(3), hist.Counters.Count(models.FeatureBrowser, "Chrome"))
	assert.Equal(t, int64(2), hist.Counters.Distinct(models.FeatureIP))
}

func TestRecordLogin_DuplicateEventIDDoesNotDuplicateRow(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	event := newEvent("alice", "198.51.100.7", "DE", time.Now().UTC())
	require.NoError(t, db.Repo.RecordLogin(ctx, event))
	require.NoError(t, db.Repo.RecordLogin(ctx, event))

	events, err := db.Repo.RecentEvents(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "same event id must insert one row")
}

func TestGlobalHistory_AggregatesAcrossAccounts(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "198.51.100.7", "DE", now)))
	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("bob", "203.0.113.9", "FR", now)))
	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("bob", "203.0.113.9", "FR", now)))

	global, err := db.Repo.GlobalHistory(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), global.LoginCount)
	assert.Equal(t, int64(2), global.Accounts)
	assert.Equal(t, int64(1), global.Counters.Count(models.FeatureIP, "198.51.100.7"))
	assert.Equal(t, int64(2), global.Counters.Count(models.FeatureIP, "203.0.113.9"))
	assert.Equal(t, int64(3), global.Counters.Count(models.FeatureBrowser, "Chrome"))
}

func TestAccountHistory_UnknownAccountIsZero(t *testing.T) {
	db := requireDB(t)

	hist, err := db.Repo.AccountHistory(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Equal(t, int64(0), hist.LoginCount)
	assert.Equal(t, int64(0), hist.Counters.Total(models.FeatureIP))
}

func TestRecentEvents_NewestFirstAndLimited(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		ev := newEvent("alice", "198.51.100.7", "DE", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, db.Repo.RecordLogin(ctx, ev))
	}

	events, err := db.Repo.RecentEvents(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
	assert.True(t, events[1].CreatedAt.After(events[2].CreatedAt))
	assert.Equal(t, "Chrome", events[0].Features.UA.BrowserName)
}

func TestAccountSummary_Aggregates(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i)
		require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", ip, "DE", now)))
	}

	summary, err := db.Repo.AccountSummary(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(5), summary.TotalLogins)
	assert.Equal(t, int64(5), summary.UniqueIPs)
	assert.Equal(t, int64(1), summary.UniqueCountries)
	assert.Equal(t, 1, summary.RiskLevel)
	require.NotNil(t, summary.LastLogin)
}

func TestDeleteEventsBefore_KeepsCounters(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "198.51.100.7", "DE", old)))
	require.NoError(t, db.Repo.RecordLogin(ctx, newEvent("alice", "198.51.100.7", "DE", recent)))

	deleted, err := db.Repo.DeleteEventsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := db.Repo.RecentEvents(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Counters survive retention so the scoring history stays intact.
	hist, err := db.Repo.AccountHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hist.LoginCount)
}
