package enip

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default reconnect bounds.
const (
	defaultInitialDelay = 5 * time.Second
	defaultMaxDelay     = 60 * time.Second
)

// Policy is the reconnect backoff policy: the delay doubles after each
// failed attempt, capped at Max, and returns to Initial on success.
// There is no jitter.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultPolicy returns the 5s/60s policy.
func DefaultPolicy() Policy {
	return Policy{Initial: defaultInitialDelay, Max: defaultMaxDelay}
}

// normalised fills zero or inconsistent bounds from the defaults.
func (p Policy) normalised() Policy {
	if p.Initial <= 0 {
		p.Initial = defaultInitialDelay
	}
	if p.Max <= 0 {
		p.Max = defaultMaxDelay
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// ReconnectState tracks consecutive failures and the current wait for one
// session type. Device and broker each own an independent instance.
//
// ReconnectState is the only implementation of the policy: its delays come
// from an ExponentialBackOff with multiplier 2 and no randomisation, giving
// Initial, then min(previous*2, Max) after each failure.
type ReconnectState struct {
	mu       sync.Mutex
	policy   Policy
	bo       *backoff.ExponentialBackOff
	delay    time.Duration
	failures int
}

// NewReconnectState returns a state at baseline for policy.
func NewReconnectState(policy Policy) *ReconnectState {
	policy = policy.normalised()
	s := &ReconnectState{
		policy: policy,
		bo: &backoff.ExponentialBackOff{
			InitialInterval:     policy.Initial,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         policy.Max,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
	}
	s.Reset()
	return s
}

// Delay returns the wait to apply before the next attempt.
func (s *ReconnectState) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Failures returns the consecutive failure count.
func (s *ReconnectState) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Fail records a failed attempt and returns the advanced delay.
func (s *ReconnectState) Fail() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.delay = s.bo.NextBackOff()
	return s.delay
}

// Reset returns to baseline after a successful connection.
func (s *ReconnectState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bo.Reset()
	s.failures = 0
	// The first NextBackOff yields InitialInterval and primes the next doubling.
	s.delay = s.bo.NextBackOff()
}
