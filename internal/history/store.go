// Package history owns the global and per-account feature counters: a
// TTL-bounded in-process cache over the durable backing store, mutated
// in place on every completed scoring cycle.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kmccarthy/riskgate/internal/models"
)

// Repository is the durable backend the store reads from and writes to.
type Repository interface {
	// GlobalHistory aggregates counters and login totals across all accounts.
	GlobalHistory(ctx context.Context) (*models.GlobalHistory, error)
	// AccountHistory aggregates one account's counters. A never-seen
	// account yields an all-zero history, not an error.
	AccountHistory(ctx context.Context, accountID string) (*models.AccountHistory, error)
	// RecordLogin persists one completed login event and its counter
	// increments. Safe to retry; duplicate increments are an accepted risk.
	RecordLogin(ctx context.Context, event *models.LoginEvent) error
}

// Config tunes the cache behavior.
type Config struct {
	// TTL bounds the age of the cached global history before a refresh
	// from the backing store is attempted.
	TTL time.Duration
}

// Store is the process-wide owner of the history cache. Reads within
// the TTL never touch the backing store; a stale cache is refreshed by
// a single in-flight fetch, with concurrent readers either awaiting
// that fetch or being served the stale value. On refresh failure the
// stale (or zero) state is served: availability over freshness.
type Store struct {
	repo   Repository
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time // injectable for tests

	mu            sync.RWMutex
	global        *models.GlobalHistory
	globalFetched time.Time
	accounts      map[string]*accountEntry

	refresh singleflight.Group
	writes  sync.WaitGroup
	closed  chan struct{}
}

// accountEntry serializes all access to one account's cached history.
// The entry mutex also orders RecordLogin calls for the same account,
// so an increment-then-persist cycle cannot race another and drop an
// increment.
type accountEntry struct {
	mu     sync.Mutex
	loaded bool
	hist   *models.AccountHistory
}

// NewStore builds the store. It performs no I/O; the cache populates
// lazily on first read.
func NewStore(repo Repository, cfg Config, logger *slog.Logger) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{
		repo:     repo,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		accounts: make(map[string]*accountEntry),
		closed:   make(chan struct{}),
	}
}

// Global returns a snapshot of the global history. The result is never
// nil: on a cold start with an unreachable backend an all-zero history
// is returned together with an advisory ErrStoreUnavailable; scoring
// proceeds either way.
func (s *Store) Global(ctx context.Context) (*models.GlobalHistory, error) {
	s.mu.RLock()
	if s.global != nil && s.now().Sub(s.globalFetched) < s.ttl {
		snapshot := s.global.Clone()
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	// Collapse concurrent refreshes into one backing-store read.
	v, err, _ := s.refresh.Do("global", func() (interface{}, error) {
		s.mu.RLock()
		fresh := s.global != nil && s.now().Sub(s.globalFetched) < s.ttl
		s.mu.RUnlock()
		if fresh {
			return nil, nil
		}

		fetched, err := s.repo.GlobalHistory(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.global = fetched
		s.globalFetched = s.now()
		s.mu.Unlock()
		return nil, nil
	})
	_ = v

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err != nil {
		s.logger.Warn("global history refresh failed, serving cached state",
			slog.Any("error", err))
		if s.global == nil {
			return models.NewGlobalHistory(), models.ErrStoreUnavailable
		}
		return s.global.Clone(), models.ErrStoreUnavailable
	}
	if s.global == nil {
		return models.NewGlobalHistory(), nil
	}
	return s.global.Clone(), nil
}

// Account returns a snapshot of one account's history, loading it from
// the backing store on first access. Creation is idempotent: concurrent
// first-time calls for the same account share a single entry. A
// first-ever login yields an all-zero history.
func (s *Store) Account(ctx context.Context, accountID string) (*models.AccountHistory, error) {
	entry := s.entry(accountID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.loaded {
		return entry.hist.Clone(), nil
	}

	hist, err := s.repo.AccountHistory(ctx, accountID)
	if err != nil {
		s.logger.Warn("account history load failed, serving zero state",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		// Not marked loaded: the next read retries the backend.
		return models.NewAccountHistory(accountID), models.ErrStoreUnavailable
	}

	entry.hist = hist
	entry.loaded = true
	return entry.hist.Clone(), nil
}

// RecordLogin is the single mutation path: it folds the event's
// features into both the account and the global counters, then persists
// the event. Mutation for one account is serialized by the entry lock;
// readers of the same scope observe either the pre- or the post-update
// state, never a torn counter set.
//
// A persistence failure is logged and swallowed: the cache update
// stands so subsequent requests in this process see consistent counts,
// accepting cache/store divergence across restarts.
func (s *Store) RecordLogin(ctx context.Context, event *models.LoginEvent) error {
	select {
	case <-s.closed:
		return models.ErrStoreUnavailable
	default:
	}

	entry := s.entry(event.AccountID)

	entry.mu.Lock()
	if !entry.loaded {
		// First login observed for this account in this process; seed
		// from the backend so in-memory counts do not fork from it.
		hist, err := s.repo.AccountHistory(ctx, event.AccountID)
		if err != nil {
			hist = models.NewAccountHistory(event.AccountID)
		}
		entry.hist = hist
		entry.loaded = true
	}
	firstSeen := entry.hist.LoginCount == 0
	entry.hist.Observe(event.Features)
	entry.mu.Unlock()

	s.mu.Lock()
	if s.global == nil {
		// Seeded zero state is not authoritative. globalFetched stays
		// zero so the next Global read still tries the backend.
		s.global = models.NewGlobalHistory()
	}
	s.global.Observe(event.Features, firstSeen)
	s.mu.Unlock()

	s.writes.Add(1)
	defer s.writes.Done()

	if err := s.repo.RecordLogin(ctx, event); err != nil {
		s.logger.Error("login event persistence failed, cache retained",
			slog.String("account_id", event.AccountID),
			slog.Any("error", err))
	}
	return nil
}

// Close stops accepting writes and waits for in-flight persistence to
// finish, up to the context deadline.
func (s *Store) Close(ctx context.Context) error {
	close(s.closed)

	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// entry returns the cache slot for an account, creating it if needed.
func (s *Store) entry(accountID string) *accountEntry {
	s.mu.RLock()
	e, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.accounts[accountID]; ok {
		return e
	}
	e = &accountEntry{}
	s.accounts[accountID] = e
	return e
}
