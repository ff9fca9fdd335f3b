package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
)

// Persister is the optional write-through persistence hook for rule
// mutations. The rule and the rule-set version it produces are saved in
// one call so an implementation can make them atomic. A nil persister
// keeps the store purely in memory.
type Persister interface {
	SaveRule(ctx context.Context, rule *domain.Rule, version int64) error
	DeleteRule(ctx context.Context, id int64, version int64) error
}

// Store holds the live rule set. Writers are serialized by a mutex; every
// successful mutation bumps the version, publishes a fresh immutable
// Snapshot behind an atomic pointer, and signals subscribers. Readers
// grab the snapshot without taking the writer lock, so an in-flight
// mutation never stalls classification.
type Store struct {
	mu      sync.Mutex
	rules   map[int64]*domain.Rule
	nextID  int64
	version int64

	snap      atomic.Pointer[Snapshot]
	changes   chan struct{}
	changedAt atomic.Int64 // unix nanos of the last version bump

	persist Persister
	logger  logging.Logger
}

// NewStore creates an empty rule store at version 0.
func NewStore(logger logging.Logger, persist Persister) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		rules:   make(map[int64]*domain.Rule),
		nextID:  1,
		changes: make(chan struct{}, 1),
		persist: persist,
		logger:  logger,
	}
	s.snap.Store(buildSnapshot(0, nil))
	return s
}

// Seed loads previously persisted rules, typically at boot. It does not
// bump the version or notify subscribers. Fails if any stored pattern no
// longer compiles.
func (s *Store) Seed(rules []domain.Rule, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range rules {
		r := rules[i]
		if _, err := Compile(r.Pattern); err != nil {
			return fmt.Errorf("seed rule %d: %w", r.ID, err)
		}
		s.rules[r.ID] = &r
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	if version > s.version {
		s.version = version
	}
	s.publishLocked()

	s.logger.Info("rule store seeded",
		logging.Int("rules", len(rules)),
		logging.Int64("version", s.version))
	return nil
}

// Create validates and adds a new rule, returning it with its assigned id.
func (s *Store) Create(ctx context.Context, pattern, tag string, enabled bool) (*domain.Rule, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, domain.ErrEmptyTag
	}
	if _, err := Compile(pattern); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rule := &domain.Rule{
		ID:        s.nextID,
		Pattern:   pattern,
		Tag:       strings.TrimSpace(tag),
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.persist != nil {
		if err := s.persist.SaveRule(ctx, rule, s.version+1); err != nil {
			return nil, fmt.Errorf("persist rule: %w", err)
		}
	}

	s.nextID++
	s.rules[rule.ID] = rule
	s.bumpLocked()

	s.logger.Info("rule created",
		logging.Int64("rule_id", rule.ID),
		logging.String("tag", rule.Tag),
		logging.Int64("version", s.version))

	out := *rule
	return &out, nil
}

// Update applies a partial update to an existing rule. Fields left nil in
// the patch are unchanged. The rule id is immutable.
func (s *Store) Update(ctx context.Context, id int64, patch domain.RulePatch) (*domain.Rule, error) {
	if patch.Tag != nil && strings.TrimSpace(*patch.Tag) == "" {
		return nil, domain.ErrEmptyTag
	}
	if patch.Pattern != nil {
		if _, err := Compile(*patch.Pattern); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}

	updated := *current
	if patch.Pattern != nil {
		updated.Pattern = *patch.Pattern
	}
	if patch.Tag != nil {
		updated.Tag = strings.TrimSpace(*patch.Tag)
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	updated.UpdatedAt = time.Now().UTC()

	if s.persist != nil {
		if err := s.persist.SaveRule(ctx, &updated, s.version+1); err != nil {
			return nil, fmt.Errorf("persist rule: %w", err)
		}
	}

	s.rules[id] = &updated
	s.bumpLocked()

	s.logger.Info("rule updated",
		logging.Int64("rule_id", id),
		logging.Int64("version", s.version))

	out := updated
	return &out, nil
}

// Delete removes a rule.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}

	if s.persist != nil {
		if err := s.persist.DeleteRule(ctx, id, s.version+1); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
	}

	delete(s.rules, id)
	s.bumpLocked()

	s.logger.Info("rule deleted",
		logging.Int64("rule_id", id),
		logging.Int64("version", s.version))
	return nil
}

// List returns all rules as of a single version, ordered by id. The pair
// is consistent: the rules are exactly the set at that version.
func (s *Store) List() ([]domain.Rule, int64) {
	snap := s.snap.Load()
	return snap.Rules(), snap.Version()
}

// Version returns the current rule-set version, monotonically
// non-decreasing.
func (s *Store) Version() int64 {
	return s.snap.Load().Version()
}

// Snapshot returns the current immutable rule-set snapshot for matching.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Changes returns a channel that receives a signal after every version
// bump. Signals are coalesced; consumers read Version() on wake.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// LastChanged returns when the current version was produced, zero before
// the first mutation. Consumers of Changes() use it to age queued work.
func (s *Store) LastChanged() time.Time {
	ns := s.changedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// bumpLocked increments the version, republishes the snapshot, and
// signals subscribers. Callers hold s.mu.
func (s *Store) bumpLocked() {
	s.version++
	s.publishLocked()
	s.changedAt.Store(time.Now().UnixNano())

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) publishLocked() {
	all := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	s.snap.Store(buildSnapshot(s.version, all))
}
