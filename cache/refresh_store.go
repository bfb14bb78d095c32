package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// refreshRecord wraps a stored token with CAS-able state flags. The used
// flag is the linearization point of Consume: CompareAndSwap admits exactly
// one winner per record with no lock shared across keys.
type refreshRecord struct {
	token   domain.RefreshToken
	used    atomic.Bool
	revoked atomic.Bool
}

func (r *refreshRecord) snapshot() *domain.RefreshToken {
	t := r.token
	t.Used = r.used.Load()
	t.Revoked = r.revoked.Load()
	return &t
}

type family struct {
	mu  sync.Mutex
	ids []string

	// gone marks a family the janitor removed from the index; a Save racing
	// the sweep re-creates the entry instead of appending to the orphan.
	gone bool
}

// RefreshTokenStore is the in-memory RefreshTokenStore. Records live in a
// sync.Map keyed by token value; a second map indexes families for
// revocation. A janitor goroutine sweeps expired records.
type RefreshTokenStore struct {
	records  sync.Map // token id -> *refreshRecord
	families sync.Map // family id -> *family

	done chan struct{}
	once sync.Once
}

// NewRefreshTokenStore creates a store sweeping expired records every
// cleanupInterval.
func NewRefreshTokenStore(cleanupInterval time.Duration) *RefreshTokenStore {
	s := &RefreshTokenStore{done: make(chan struct{})}
	go s.janitor(cleanupInterval)
	return s
}

// Save implements domain.RefreshTokenStore.
func (s *RefreshTokenStore) Save(_ context.Context, token *domain.RefreshToken) error {
	rec := &refreshRecord{token: *token}
	rec.used.Store(token.Used)
	rec.revoked.Store(token.Revoked)
	s.records.Store(token.ID, rec)

	for {
		famAny, _ := s.families.LoadOrStore(token.FamilyID, &family{})
		fam := famAny.(*family)
		fam.mu.Lock()
		if fam.gone {
			fam.mu.Unlock()
			continue
		}
		fam.ids = append(fam.ids, token.ID)
		fam.mu.Unlock()
		return nil
	}
}

// Consume implements domain.RefreshTokenStore.
func (s *RefreshTokenStore) Consume(_ context.Context, id string) (*domain.RefreshToken, error) {
	recAny, ok := s.records.Load(id)
	if !ok {
		return nil, serrors.ErrRefreshTokenNotFound
	}
	rec := recAny.(*refreshRecord)

	if rec.token.Expired(time.Now().UTC()) {
		return nil, serrors.ErrRefreshTokenNotFound
	}
	if rec.revoked.Load() {
		return rec.snapshot(), serrors.ErrRefreshTokenRevoked
	}
	if !rec.used.CompareAndSwap(false, true) {
		// Lost the race or genuine replay; the caller decides which.
		return rec.snapshot(), serrors.ErrRefreshTokenUsed
	}

	return rec.snapshot(), nil
}

// RevokeFamily implements domain.RefreshTokenStore.
func (s *RefreshTokenStore) RevokeFamily(_ context.Context, familyID string) error {
	famAny, ok := s.families.Load(familyID)
	if !ok {
		return nil
	}
	fam := famAny.(*family)

	fam.mu.Lock()
	ids := append([]string(nil), fam.ids...)
	fam.mu.Unlock()

	for _, id := range ids {
		if recAny, ok := s.records.Load(id); ok {
			recAny.(*refreshRecord).revoked.Store(true)
		}
	}
	return nil
}

func (s *RefreshTokenStore) janitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		}
	}
}

// sweep drops expired records and prunes the family index so neither grows
// for the life of the process.
func (s *RefreshTokenStore) sweep(now time.Time) {
	s.records.Range(func(key, value any) bool {
		if value.(*refreshRecord).token.Expired(now) {
			s.records.Delete(key)
		}
		return true
	})

	s.families.Range(func(key, value any) bool {
		fam := value.(*family)
		fam.mu.Lock()
		live := fam.ids[:0]
		for _, id := range fam.ids {
			if _, ok := s.records.Load(id); ok {
				live = append(live, id)
			}
		}
		fam.ids = live
		if len(fam.ids) == 0 {
			fam.gone = true
			s.families.Delete(key)
		}
		fam.mu.Unlock()
		return true
	})
}

// Close stops the janitor goroutine.
func (s *RefreshTokenStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
