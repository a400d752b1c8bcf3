package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrNoReservation is returned when an outcome is recorded for a key that has
// no outstanding reservation.
var ErrNoReservation = errors.New("no outstanding reservation")

// DefaultStatsTimeout bounds each StatsStore.Record call made on the request path.
const DefaultStatsTimeout = 250 * time.Millisecond

// Limiter enforces fixed-window quotas per (identity, rule).
//
// Success-only rules use a two-phase protocol: Admit reserves a slot and the
// caller settles it with RecordOutcome (or Reservation.Settle) once the guarded
// call has finished. Failed calls release the slot without consuming quota.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	rules        map[string]Rule
	clock        func() time.Time
	stats        StatsStore
	statsTimeout time.Duration
	idleTTL      time.Duration
}

// State is a snapshot of one quota bucket.
type State struct {
	Used        int       `json:"used"`
	Reserved    int       `json:"reserved"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// Decision is the result of Admit.
type Decision struct {
	Allowed     bool
	Rule        Rule
	Remaining   int
	ResetAt     time.Time
	RetryAfter  time.Duration
	Reservation *Reservation
}

type bucketKey struct {
	identity string
	rule     string
}

type bucket struct {
	mu          sync.Mutex
	used        int
	reserved    int
	windowStart time.Time
	lastSeen    time.Time
	evicted     bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithStats records every decision and settlement in store.
func WithStats(store StatsStore) Option {
	return func(l *Limiter) { l.stats = store }
}

// WithStatsTimeout caps how long one stats write may hold up a request.
func WithStatsTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.statsTimeout = d
		}
	}
}

// WithIdleTTL sets how long an expired, unreserved bucket is kept before Cleanup drops it.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

// New creates a limiter for the given rules. A nil map uses DefaultRules.
func New(rules map[string]Rule, opts ...Option) *Limiter {
	if rules == nil {
		rules = DefaultRules
	}

	l := &Limiter{
		buckets:      make(map[bucketKey]*bucket),
		rules:        make(map[string]Rule, len(rules)),
		idleTTL:      15 * time.Minute,
		statsTimeout: DefaultStatsTimeout,
	}
	for name, rule := range rules {
		rule.Name = name
		l.rules[name] = rule
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the named rule.
func (l *Limiter) Rule(name string) (Rule, bool) {
	rule, ok := l.rules[name]
	return rule, ok
}

// Rules returns all rules ordered by name.
func (l *Limiter) Rules() []Rule {
	return SortedRules(l.rules)
}

// Admit decides whether identity may perform one more request under ruleName.
func (l *Limiter) Admit(ctx context.Context, identity, ruleName string) (Decision, error) {
	rule, ok := l.rules[ruleName]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownRule, ruleName)
	}

	now := l.now()
	b := l.lock(bucketKey{identity: identity, rule: rule.Name})
	b.roll(now, rule.Window)
	b.lastSeen = now
	resetAt := b.windowStart.Add(rule.Window)

	if b.remaining(rule.Requests) <= 0 {
		b.mu.Unlock()
		l.record(ctx, identity, rule.Name, OutcomeDenied, now)
		return Decision{
			Allowed:    false,
			Rule:       rule,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	if rule.Deduct == DeductAlways {
		b.used++
	} else {
		b.reserved++
	}
	remaining := b.remaining(rule.Requests)
	b.mu.Unlock()

	l.record(ctx, identity, rule.Name, OutcomeAllowed, now)
	return Decision{
		Allowed:   true,
		Rule:      rule,
		Remaining: remaining,
		ResetAt:   resetAt,
		Reservation: &Reservation{
			limiter:  l,
			identity: identity,
			rule:     rule.Name,
		},
	}, nil
}

// RecordOutcome settles one reservation for a success-only rule. A successful
// call consumes the reserved slot; a failed one releases it. Always-deduct
// rules ignore outcomes.
func (l *Limiter) RecordOutcome(ctx context.Context, identity, ruleName string, succeeded bool) error {
	rule, ok := l.rules[ruleName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, ruleName)
	}
	if rule.Deduct == DeductAlways {
		return nil
	}

	now := l.now()
	b := l.lock(bucketKey{identity: identity, rule: rule.Name})
	if b.reserved == 0 {
		b.mu.Unlock()
		return ErrNoReservation
	}
	b.roll(now, rule.Window)
	b.lastSeen = now
	b.reserved--
	if succeeded {
		b.used++
	}
	b.mu.Unlock()

	outcome := OutcomeRolledBack
	if succeeded {
		outcome = OutcomeCommitted
	}
	l.record(ctx, identity, rule.Name, outcome, now)
	return nil
}

// Snapshot reports the current state of a bucket without mutating it.
func (l *Limiter) Snapshot(identity, ruleName string) (State, bool) {
	rule, ok := l.rules[ruleName]
	if !ok {
		return State{}, false
	}

	l.mu.Lock()
	b, ok := l.buckets[bucketKey{identity: identity, rule: rule.Name}]
	l.mu.Unlock()
	if !ok {
		return State{Remaining: rule.Requests}, false
	}

	now := l.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	state := State{
		Used:        b.used,
		Reserved:    b.reserved,
		WindowStart: b.windowStart,
	}
	if b.expired(now, rule.Window) {
		state.Used = 0
		state.WindowStart = now
	}
	state.ResetAt = state.WindowStart.Add(rule.Window)
	state.Remaining = clampZero(rule.Requests - state.Used - state.Reserved)
	return state, true
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets whose window has expired, hold no reservations, and
// have been idle for at least the idle TTL. It returns the number removed.
func (l *Limiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		rule := l.rules[key.rule]

		b.mu.Lock()
		if b.reserved == 0 && b.expired(now, rule.Window) && now.Sub(b.lastSeen) >= l.idleTTL {
			b.evicted = true
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done. Each hook is
// called after a sweep with the number of buckets still tracked.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration, hooks ...func(live int)) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
				live := l.Len()
				for _, hook := range hooks {
					hook(live)
				}
			}
		}
	}()
}

// lock returns the bucket for key with its mutex held.
func (l *Limiter) lock(key bucketKey) *bucket {
	for {
		l.mu.Lock()
		b, ok := l.buckets[key]
		if !ok {
			b = &bucket{}
			l.buckets[key] = b
		}
		l.mu.Unlock()

		b.mu.Lock()
		if !b.evicted {
			return b
		}
		// Lost a race with Cleanup; look the key up again.
		b.mu.Unlock()
	}
}

func (l *Limiter) record(ctx context.Context, identity, rule string, outcome Outcome, at time.Time) {
	if l.stats == nil {
		return
	}
	// Best-effort and bounded; detached from request cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.statsTimeout)
	defer cancel()
	_ = l.stats.Record(ctx, StatsEvent{
		Identity: identity,
		Rule:     rule,
		Outcome:  outcome,
		At:       at,
	})
}

func (l *Limiter) now() time.Time {
	if l != nil && l.clock != nil {
		return l.clock()
	}
	return time.Now().UTC()
}

func (b *bucket) expired(now time.Time, window time.Duration) bool {
	return b.windowStart.IsZero() || !now.Before(b.windowStart.Add(window))
}

// roll starts a new window when the current one has ended. Reservations
// belong to in-flight calls and survive the reset.
func (b *bucket) roll(now time.Time, window time.Duration) {
	if b.expired(now, window) {
		b.windowStart = now
		b.used = 0
	}
}

func (b *bucket) remaining(limit int) int {
	return clampZero(limit - b.used - b.reserved)
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Description renders the denial message body, e.g.
// "rate limit exceeded (1 per 1 minute), retry in 42s".
func (d Decision) Description() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry in %s", d.Rule.Description(), time.Duration(d.RetryAfterSeconds())*time.Second)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 for denials.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		if d.Allowed {
			return 0
		}
		return 1
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Reservation is the handle returned by a successful Admit. Settle it exactly
// once when the guarded call has finished; later calls are ignored.
type Reservation struct {
	limiter  *Limiter
	identity string
	rule     string
	once     sync.Once
}

// Settle records the outcome of the guarded call.
func (r *Reservation) Settle(ctx context.Context, succeeded bool) error {
	if r == nil || r.limiter == nil {
		return nil
	}

	var err error
	r.once.Do(func() {
		err = r.limiter.RecordOutcome(ctx, r.identity, r.rule, succeeded)
	})
	return err
}

// Commit consumes the reserved slot.
func (r *Reservation) Commit(ctx context.Context) error {
	return r.Settle(ctx, true)
}

// Rollback releases the reserved slot.
func (r *Reservation) Rollback(ctx context.Context) error {
	return r.Settle(ctx, false)
}
