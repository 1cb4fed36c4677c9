package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kmccarthy/riskgate/internal/database"
	"github.com/kmccarthy/riskgate/internal/models"
)

// HistoryRepository handles database operations for login events and
// feature counters. Rows in feature_stats with a NULL account_id form
// the global scope.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// GlobalHistory loads the global counters and login totals. Login
// counts derive from the counters, not from the event log: the event
// log is subject to retention cleanup while counters never decay, and
// the invariant sum(counters[k]) == loginCount must hold.
func (r *HistoryRepository) GlobalHistory(ctx context.Context) (*models.GlobalHistory, error) {
	hist := models.NewGlobalHistory()

	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT account_id) FROM feature_stats WHERE account_id IS NOT NULL`,
	).Scan(&hist.Accounts)
	if err != nil {
		return nil, fmt.Errorf("load account count: %w", database.MapPostgresError(err))
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT feature_key, feature_value, count
		FROM feature_stats
		WHERE account_id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load global counters: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		var count int64
		if err := rows.Scan(&key, &value, &count); err != nil {
			return nil, fmt.Errorf("scan global counter: %w", err)
		}
		hist.Counters[models.FeatureKey(key)][value] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate global counters: %w", err)
	}

	// Every feature key is present in every recorded event, so any
	// key's total equals the login count.
	hist.LoginCount = hist.Counters.Total(models.FeatureIP)

	return hist, nil
}

// AccountHistory loads one account's counters. A never-seen account
// yields an all-zero history.
func (r *HistoryRepository) AccountHistory(ctx context.Context, accountID string) (*models.AccountHistory, error) {
	hist := models.NewAccountHistory(accountID)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT feature_key, feature_value, count
		FROM feature_stats
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account counters: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		var count int64
		if err := rows.Scan(&key, &value, &count); err != nil {
			return nil, fmt.Errorf("scan account counter: %w", err)
		}
		hist.Counters[models.FeatureKey(key)][value] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account counters: %w", err)
	}
	hist.LoginCount = hist.Counters.Total(models.FeatureIP)

	return hist, nil
}

// RecordLogin persists one login event and bumps the global and the
// account-scoped counter row for every observed feature value, in a
// single transaction. The upsert makes retries at-least-once safe.
func (r *HistoryRepository) RecordLogin(ctx context.Context, event *models.LoginEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO login_events
				(id, account_id, ip, asn, country_code, browser_name,
				 browser_major_version, os_version, device_class, rtt_bucket,
				 risk_score, action, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
		`,
			id,
			event.AccountID,
			event.Features.IP.IP,
			event.Features.IP.ASN,
			event.Features.IP.CountryCode,
			event.Features.UA.BrowserName,
			event.Features.UA.BrowserMajorVersion,
			event.Features.UA.OSVersion,
			event.Features.UA.DeviceClass,
			event.Features.RTTBucket,
			event.RiskScore,
			string(event.Action),
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert login event: %w", database.MapPostgresError(err))
		}

		for key, value := range event.Features.Values() {
			// Global scope.
			_, err := tx.Exec(ctx, `
				INSERT INTO feature_stats (feature_key, feature_value, account_id, count, last_seen)
				VALUES ($1, $2, NULL, 1, $3)
				ON CONFLICT (feature_key, feature_value, account_id)
				DO UPDATE SET count = feature_stats.count + 1, last_seen = $3
			`, string(key), value, event.CreatedAt)
			if err != nil {
				return fmt.Errorf("upsert global counter %s: %w", key, database.MapPostgresError(err))
			}

			// Account scope.
			_, err = tx.Exec(ctx, `
				INSERT INTO feature_stats (feature_key, feature_value, account_id, count, last_seen)
				VALUES ($1, $2, $3, 1, $4)
				ON CONFLICT (feature_key, feature_value, account_id)
				DO UPDATE SET count = feature_stats.count + 1, last_seen = $4
			`, string(key), value, event.AccountID, event.CreatedAt)
			if err != nil {
				return fmt.Errorf("upsert account counter %s: %w", key, database.MapPostgresError(err))
			}
		}

		return nil
	})
}

// RecentEvents returns an account's most recent scoring events, newest
// first.
func (r *HistoryRepository) RecentEvents(ctx context.Context, accountID string, limit int) ([]models.LoginEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, account_id, ip, asn, country_code, browser_name,
		       browser_major_version, os_version, device_class, rtt_bucket,
		       risk_score, action, created_at
		FROM login_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent events: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	var events []models.LoginEvent
	for rows.Next() {
		var e models.LoginEvent
		var action string
		if err := rows.Scan(
			&e.ID, &e.AccountID,
			&e.Features.IP.IP, &e.Features.IP.ASN, &e.Features.IP.CountryCode,
			&e.Features.UA.BrowserName, &e.Features.UA.BrowserMajorVersion,
			&e.Features.UA.OSVersion, &e.Features.UA.DeviceClass,
			&e.Features.RTTBucket,
			&e.RiskScore, &action, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan login event: %w", err)
		}
		e.Action = models.Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login events: %w", err)
	}

	return events, nil
}

// AccountSummary aggregates an account's activity for operator views.
// The coarse risk level grows with the spread of distinct origins.
func (r *HistoryRepository) AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	summary := &models.AccountSummary{AccountID: accountID}

	var lastLogin *time.Time
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT ip),
		       COUNT(DISTINCT country_code),
		       COUNT(DISTINCT browser_name),
		       COUNT(DISTINCT device_class),
		       MAX(created_at)
		FROM login_events
		WHERE account_id = $1
	`, accountID).Scan(
		&summary.TotalLogins,
		&summary.UniqueIPs,
		&summary.UniqueCountries,
		&summary.UniqueBrowsers,
		&summary.UniqueDevices,
		&lastLogin,
	)
	if err != nil {
		return nil, fmt.Errorf("load account summary: %w", database.MapPostgresError(err))
	}
	summary.LastLogin = lastLogin

	switch {
	case summary.UniqueIPs > 5:
		summary.RiskLevel = 2
	case summary.UniqueIPs > 3:
		summary.RiskLevel = 1
	}

	return summary, nil
}

// DeleteEventsBefore removes login events older than the cutoff. The
// feature counters are deliberately not decayed.
func (r *HistoryRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM login_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
