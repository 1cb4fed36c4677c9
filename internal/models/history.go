package models

// FeatureCounters maps each feature key to the occurrence counts of the
// values observed for it. Counters only grow; no decay or eviction is
// applied to the numbers the scorer consumes.
type FeatureCounters map[FeatureKey]map[string]int64

// NewFeatureCounters returns counters with an empty map for every
// tracked feature key.
func NewFeatureCounters() FeatureCounters {
	c := make(FeatureCounters, len(AllFeatureKeys))
	for _, k := range AllFeatureKeys {
		c[k] = make(map[string]int64)
	}
	return c
}

// Increment bumps the count for the observed value of a feature key.
func (c FeatureCounters) Increment(key FeatureKey, value string) {
	m, ok := c[key]
	if !ok {
		m = make(map[string]int64)
		c[key] = m
	}
	m[value]++
}

// Count returns how often a value has been observed for a feature key.
func (c FeatureCounters) Count(key FeatureKey, value string) int64 {
	return c[key][value]
}

// Total returns the sum of all value counts for a feature key. Features
// that are sometimes absent from an event may total less than the
// login count; that is an allowed state, not an error.
func (c FeatureCounters) Total(key FeatureKey) int64 {
	var total int64
	for _, n := range c[key] {
		total += n
	}
	return total
}

// Distinct returns the number of distinct values seen for a feature key.
func (c FeatureCounters) Distinct(key FeatureKey) int64 {
	return int64(len(c[key]))
}

// Clone returns a deep copy, so callers can hand out snapshots without
// exposing shared mutable state.
func (c FeatureCounters) Clone() FeatureCounters {
	out := make(FeatureCounters, len(c))
	for key, values := range c {
		m := make(map[string]int64, len(values))
		for v, n := range values {
			m[v] = n
		}
		out[key] = m
	}
	return out
}

// AccountHistory aggregates the login history of a single account.
// Created lazily on the account's first observed login.
type AccountHistory struct {
	AccountID  string          `json:"account_id"`
	LoginCount int64           `json:"login_count"`
	Counters   FeatureCounters `json:"counters"`
}

// NewAccountHistory returns an all-zero history for an account.
func NewAccountHistory(accountID string) *AccountHistory {
	return &AccountHistory{AccountID: accountID, Counters: NewFeatureCounters()}
}

// Clone returns a deep copy of the history.
func (h *AccountHistory) Clone() *AccountHistory {
	return &AccountHistory{
		AccountID:  h.AccountID,
		LoginCount: h.LoginCount,
		Counters:   h.Counters.Clone(),
	}
}

// Observe folds one login's features into the counters.
func (h *AccountHistory) Observe(set FeatureSet) {
	h.LoginCount++
	for key, value := range set.Values() {
		h.Counters.Increment(key, value)
	}
}

// GlobalHistory aggregates login history across all accounts.
type GlobalHistory struct {
	LoginCount int64           `json:"login_count"`
	Accounts   int64           `json:"accounts"`
	Counters   FeatureCounters `json:"counters"`
}

// NewGlobalHistory returns an all-zero global history (cold start).
func NewGlobalHistory() *GlobalHistory {
	return &GlobalHistory{Counters: NewFeatureCounters()}
}

// Clone returns a deep copy of the history.
func (h *GlobalHistory) Clone() *GlobalHistory {
	return &GlobalHistory{
		LoginCount: h.LoginCount,
		Accounts:   h.Accounts,
		Counters:   h.Counters.Clone(),
	}
}

// Observe folds one login's features into the counters. firstSeen marks
// the event as the account's first login, which grows the account tally.
func (h *GlobalHistory) Observe(set FeatureSet, firstSeen bool) {
	h.LoginCount++
	if firstSeen {
		h.Accounts++
	}
	for key, value := range set.Values() {
		h.Counters.Increment(key, value)
	}
}
