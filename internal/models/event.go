package models

import "time"

// Action is the disposition the policy engine assigns to a login attempt.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionReject    Action = "REJECT"
)

// LoginAttempt is the input the authentication middleware hands to the
// scoring core. AccountID must be non-empty; its absence is a contract
// violation, not a scoring case.
type LoginAttempt struct {
	AccountID string
	ClientIP  string
	UserAgent string
	RTTMillis float64
}

// FactorScore records one feature group's contribution to the raw score,
// kept for explainability in responses and the event log.
type FactorScore struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
}

// Assessment is the outcome of scoring one login attempt.
type Assessment struct {
	AccountID  string        `json:"account_id"`
	Score      float64       `json:"score"`
	Action     Action        `json:"action"`
	Factors    []FactorScore `json:"factors,omitempty"`
	AssessedAt time.Time     `json:"assessed_at"`
}

// LoginEvent is the persisted record of a completed scoring cycle.
type LoginEvent struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Features  FeatureSet `json:"features"`
	RiskScore float64    `json:"risk_score"`
	Action    Action     `json:"action"`
	CreatedAt time.Time  `json:"created_at"`
}

// AccountSummary is a read model over an account's event history,
// exposed for operator visibility.
type AccountSummary struct {
	AccountID       string     `json:"account_id"`
	TotalLogins     int64      `json:"total_logins"`
	UniqueIPs       int64      `json:"unique_ips"`
	UniqueCountries int64      `json:"unique_countries"`
	UniqueBrowsers  int64      `json:"unique_browsers"`
	UniqueDevices   int64      `json:"unique_devices"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	RiskLevel       int        `json:"risk_level"`
}
