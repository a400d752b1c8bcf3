package quota

import (
	"context"
	"sync"
	"time"
)

// Outcome labels a quota event.
type Outcome string

const (
	OutcomeAllowed    Outcome = "allowed"
	OutcomeDenied     Outcome = "denied"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// StatsEvent describes one admission decision or settlement.
type StatsEvent struct {
	Identity string
	Rule     string
	Outcome  Outcome
	At       time.Time
}

// StatsStore persists quota events. Recording is best-effort: the limiter
// ignores errors so a broken store never fails a request.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// MultiStats fans one event out to several stores.
type MultiStats []StatsStore

// Record forwards ev to every store and returns the first error.
func (m MultiStats) Record(ctx context.Context, ev StatsEvent) error {
	var first error
	for _, store := range m {
		if store == nil {
			continue
		}
		if err := store.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Counters aggregates events per outcome.
type Counters map[Outcome]int64

// MemoryStats keeps counters in process. Nothing expires.
type MemoryStats struct {
	mu     sync.Mutex
	total  Counters
	byRule map[string]Counters
}

// NewMemoryStats creates an empty in-memory store.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		total:  make(Counters),
		byRule: make(map[string]Counters),
	}
}

// Record implements StatsStore.
func (s *MemoryStats) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	c, ok := s.byRule[ev.Rule]
	if !ok {
		c = make(Counters)
		s.byRule[ev.Rule] = c
	}
	c[ev.Outcome]++
	return nil
}

// Total returns a copy of the overall counters.
func (s *MemoryStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.total)
}

// ByRule returns a copy of the per-rule counters.
func (s *MemoryStats) ByRule() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRule))
	for rule, c := range s.byRule {
		out[rule] = copyCounters(c)
	}
	return out
}

func copyCounters(c Counters) Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
