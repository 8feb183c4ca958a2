package auth

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
)

const codeDigits = 6

type challenge struct {
	code     string
	expires  time.Time
	failures int
}

// ChallengeStore holds at most one outstanding numeric code per key (email).
type ChallengeStore struct {
	mu          sync.Mutex
	codes       map[string]*challenge
	ttl         time.Duration
	maxFailures int
	clock       clockx.Clock
}

// NewChallengeStore creates a store whose codes live for ttl. A code is
// discarded after maxFailures wrong guesses (<= 0 means the first one).
func NewChallengeStore(ttl time.Duration, maxFailures int, clock clockx.Clock) *ChallengeStore {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &ChallengeStore{
		codes:       map[string]*challenge{},
		ttl:         ttl,
		maxFailures: maxFailures,
		clock:       clock,
	}
}

// Issue replaces any outstanding code for key with a fresh one.
func (s *ChallengeStore) Issue(key string) (code string, expires time.Time, err error) {
	code, err = common.MakeNumericCode(codeDigits)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.clock.Now()
	expires = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	s.codes[key] = &challenge{code: code, expires: expires}
	return code, expires, nil
}

// CheckOnce verifies code and discards the challenge whatever the outcome.
func (s *ChallengeStore) CheckOnce(key, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[key]
	if !ok {
		return false
	}
	delete(s.codes, key)

	return !s.clock.Now().After(c.expires) && equalCode(c.code, code)
}

// Verify checks code and keeps the challenge on success. Wrong guesses are
// counted; expired or exhausted challenges are discarded.
func (s *ChallengeStore) Verify(key, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(key, code, false)
}

// Consume checks code and discards the challenge on success.
func (s *ChallengeStore) Consume(key, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(key, code, true)
}

// Pending reports whether key has an unexpired challenge.
func (s *ChallengeStore) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[key]
	return ok && !s.clock.Now().After(c.expires)
}

func (s *ChallengeStore) check(key, code string, consume bool) bool {
	c, ok := s.codes[key]
	if !ok {
		return false
	}

	if s.clock.Now().After(c.expires) {
		delete(s.codes, key)
		return false
	}

	if !equalCode(c.code, code) {
		c.failures++
		if c.failures >= s.maxFailures {
			delete(s.codes, key)
		}
		return false
	}

	if consume {
		delete(s.codes, key)
	}
	return true
}

func (s *ChallengeStore) sweep(now time.Time) {
	for k, c := range s.codes {
		if now.After(c.expires) {
			delete(s.codes, k)
		}
	}
}

func equalCode(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
