package worker

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig defines per-kind behaviour such as rate limiting and
// concurrency.
type LimitConfig struct {
	// Kind is the command kind the limits apply to.
	Kind string

	// MaxConcurrency limits how many commands of this kind may run
	// simultaneously across the local pool. Zero means no kind-specific
	// limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained commands per second that may be
	// started for this kind. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// kindState tracks runtime state for a single command kind.
type kindState struct {
	config  LimitConfig
	limiter *rate.Limiter
	active  int
}

// Limits controls per-kind rate limiting and concurrency.
// It is safe for concurrent use.
type Limits struct {
	mu    sync.Mutex
	kinds map[string]*kindState
}

// NewLimits creates a Limits with the given kind configurations.
// Kinds not listed here have no limits.
func NewLimits(configs ...LimitConfig) *Limits {
	l := &Limits{
		kinds: make(map[string]*kindState, len(configs)),
	}
	for _, cfg := range configs {
		l.kinds[cfg.Kind] = newKindState(cfg)
	}
	return l
}

func newKindState(cfg LimitConfig) *kindState {
	ks := &kindState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ks.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ks
}

// Acquire checks rate limits and concurrency for the given kind. If the
// command is allowed to proceed it increments the active counter and
// returns true. The caller MUST call Release when the command completes.
func (l *Limits) Acquire(kind string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ks := l.kinds[kind]
	if ks == nil {
		return true
	}
	if ks.limiter != nil && !ks.limiter.Allow() {
		return false
	}
	if ks.config.MaxConcurrency > 0 && ks.active >= ks.config.MaxConcurrency {
		return false
	}

	ks.active++
	return true
}

// Release decrements the active command count for the kind.
func (l *Limits) Release(kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ks := l.kinds[kind]; ks != nil && ks.active > 0 {
		ks.active--
	}
}

// SetLimitConfig dynamically updates (or creates) a kind configuration.
func (l *Limits) SetLimitConfig(cfg LimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.kinds[cfg.Kind]
	ks := newKindState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ks.active = existing.active
	}
	l.kinds[cfg.Kind] = ks
}

// ActiveCount returns the current number of active commands for a kind.
func (l *Limits) ActiveCount(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ks := l.kinds[kind]; ks != nil {
		return ks.active
	}
	return 0
}
