package safety

import (
	"log/slog"
	"sync"
)

// ChangeFunc observes tier switches. It runs after the new policy is in force.
type ChangeFunc func(prev, next Policy)

// Store holds the active policy. Reads return copies; switching tiers rebuilds
// the policy from the tier table so limits never drift across switches.
type Store struct {
	mu        sync.RWMutex
	current   Policy
	overrides Overrides
	observers []ChangeFunc
}

func NewStore(tier Tier, overrides Overrides) (*Store, error) {
	p, err := ForTier(tier, overrides)
	if err != nil {
		return nil, err
	}
	return &Store{current: p, overrides: overrides}, nil
}

// Current returns a copy of the active policy.
func (s *Store) Current() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Store) Tier() Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Tier
}

// OnChange registers fn to be called on every tier switch.
func (s *Store) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// SwitchTier replaces the active policy with the table entry for tier.
func (s *Store) SwitchTier(tier Tier) (Policy, error) {
	next, err := ForTier(tier, s.overrides)
	if err != nil {
		return Policy{}, err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	observers := append([]ChangeFunc(nil), s.observers...)
	s.mu.Unlock()

	slog.Info("Safety tier switched", "from", prev.Tier, "to", next.Tier)
	for _, fn := range observers {
		fn(prev.Clone(), next.Clone())
	}
	return next.Clone(), nil
}
