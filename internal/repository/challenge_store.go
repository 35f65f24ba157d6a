package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/identity-authority/internal/clock"
)

// Challenge is a pending second-factor login: the intermediate token's jti
// maps to the account it was issued for and the number of codes tried.
type Challenge struct {
	AccountID string
	Attempts  int
}

// attemptScript bumps the attempt counter of an existing challenge without
// resurrecting an expired or consumed one.
var attemptScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local acc = redis.call('HGET', KEYS[1], 'account_id')
return {acc, n}
`)

// RedisChallengeStore keeps pending 2FA challenges in Redis hashes that
// expire together with the intermediate token.
type RedisChallengeStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisChallengeStore(rdb *redis.Client, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "mfa"
	}
	return &RedisChallengeStore{rdb: rdb, prefix: prefix}
}

func (s *RedisChallengeStore) key(id string) string { return s.prefix + ":" + id }

func (s *RedisChallengeStore) Put(ctx context.Context, id, accountID string, ttl time.Duration) error {
	k := s.key(id)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, "account_id", accountID, "attempts", 0)
	pipe.Expire(ctx, k, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Attempt records one verification attempt and returns the challenge with
// the updated count. Missing or expired challenges yield ErrNotFound.
func (s *RedisChallengeStore) Attempt(ctx context.Context, id string) (Challenge, error) {
	res, err := attemptScript.Run(ctx, s.rdb, []string{s.key(id)}).Slice()
	if err == redis.Nil {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	if len(res) != 2 {
		return Challenge{}, fmt.Errorf("unexpected challenge reply %v", res)
	}
	acc, _ := res[0].(string)
	n, _ := res[1].(int64)
	return Challenge{AccountID: acc, Attempts: int(n)}, nil
}

// Consume deletes the challenge and reports whether this call removed it;
// only one caller can ever win.
func (s *RedisChallengeStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryChallengeStore is the in-process fallback used when Redis is not
// reachable. Challenges are lost on restart and are not shared between
// replicas.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]memoryChallenge
}

type memoryChallenge struct {
	Challenge
	expires time.Time
}

func NewMemoryChallengeStore(c clock.Clock) *MemoryChallengeStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryChallengeStore{clock: c, items: make(map[string]memoryChallenge)}
}

func (s *MemoryChallengeStore) Put(_ context.Context, id, accountID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for k, v := range s.items {
		if !v.expires.After(now) {
			delete(s.items, k)
		}
	}
	s.items[id] = memoryChallenge{Challenge: Challenge{AccountID: accountID}, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) Attempt(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok || !c.expires.After(s.clock.Now()) {
		delete(s.items, id)
		return Challenge{}, ErrNotFound
	}
	c.Attempts++
	s.items[id] = c
	return c.Challenge, nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	delete(s.items, id)
	return ok && c.expires.After(s.clock.Now()), nil
}
