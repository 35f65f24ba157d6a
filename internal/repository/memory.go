package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/identity-authority/internal/model"
)

// MemoryStore keeps accounts and sessions in process memory. It honours the
// same contracts as AccountRepo and SessionRepo, including unique email,
// username and token hash, and serializes every mutation behind one mutex.
// Nothing survives a restart; it backs STORE_DRIVER=memory and tests.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	sessions map[string]*model.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		sessions: make(map[string]*model.Session),
	}
}

func (m *MemoryStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Email = NormalizeEmail(a.Email)
	if _, ok := m.accounts[a.ID]; ok || m.conflicts(a) {
		return ErrDuplicate
	}
	m.accounts[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, id string, fn func(*model.Account) error) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.apply(cur, fn)
}

func (m *MemoryStore) ConsumeOneTimeToken(ctx context.Context, purpose model.TokenPurpose, hash string, now time.Time, fn func(*model.Account) error) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.accounts {
		if !cur.OneTimeTokenMatches(purpose, hash, now) {
			continue
		}
		return m.apply(cur, func(a *model.Account) error {
			a.ClearOneTimeToken(purpose)
			if fn != nil {
				return fn(a)
			}
			return nil
		})
	}
	return nil, ErrNotFound
}

// apply runs fn on a copy and commits it only when fn succeeds and the
// result keeps the unique keys intact. Caller holds m.mu.
func (m *MemoryStore) apply(cur *model.Account, fn func(*model.Account) error) (*model.Account, error) {
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Email = NormalizeEmail(next.Email)
	if m.conflicts(next) {
		return nil, ErrDuplicate
	}
	m.accounts[next.ID] = next
	return next.Clone(), nil
}

// conflicts reports whether another account already holds a's email or
// username. Caller holds m.mu.
func (m *MemoryStore) conflicts(a *model.Account) bool {
	for id, other := range m.accounts {
		if id == a.ID {
			continue
		}
		if other.Email == a.Email {
			return true
		}
		if a.Username != "" && strings.EqualFold(other.Username, a.Username) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	for _, other := range m.sessions {
		if other.TokenHash == s.TokenHash {
			return ErrDuplicate
		}
	}
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *MemoryStore) SessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			return cloneSession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.ValidAt(now) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) RevokeSession(ctx context.Context, accountID, sessionID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.AccountID != accountID {
		return false, nil
	}
	if s.RevokedAt == nil {
		t := now
		s.RevokedAt = &t
	}
	return true, nil
}

func (m *MemoryStore) RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil {
			t := now
			s.RevokedAt = &t
		}
	}
	return nil
}

func (m *MemoryStore) RevokeAllSessions(ctx context.Context, accountID, exceptHash string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.AccountID != accountID || s.RevokedAt != nil || s.TokenHash == exceptHash {
			continue
		}
		t := now
		s.RevokedAt = &t
		n++
	}
	return n, nil
}

func (m *MemoryStore) DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
