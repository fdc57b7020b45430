package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/finance/pkg/models"
)

// MemoryStore is a volatile Store. Users are kept as JSON snapshots so that
// later mutations of a saved user are not visible until saved again.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[models.UserID][]byte
	plans map[string]PlanRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[models.UserID][]byte),
		plans: make(map[string]PlanRecord),
	}
}

func (s *MemoryStore) SaveUser(ctx context.Context, user *models.FinanceUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Key()] = data
	return nil
}

func (s *MemoryStore) RemoveUser(ctx context.Context, id models.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) LoadUsers(ctx context.Context) ([]*models.FinanceUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.FinanceUser, 0, len(s.users))
	for _, data := range s.users {
		user := &models.FinanceUser{}
		if err := json.Unmarshal(data, user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Key().String() < users[j].Key().String() })
	return users, nil
}

// User returns the last saved snapshot of a user
func (s *MemoryStore) User(id models.UserID) (*models.FinanceUser, bool) {
	s.mu.RLock()
	data, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	user := &models.FinanceUser{}
	if err := json.Unmarshal(data, user); err != nil {
		return nil, false
	}
	return user, true
}

func (s *MemoryStore) SavePlan(ctx context.Context, plan PlanRecord) error {
	options := make(map[string]string, len(plan.Options))
	for k, v := range plan.Options {
		options[k] = v
	}
	plan.Options = options

	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.Name] = plan
	return nil
}

func (s *MemoryStore) RemovePlan(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[name]; !ok {
		return fmt.Errorf("plan %s: %w", name, ErrNotFound)
	}
	delete(s.plans, name)
	return nil
}

func (s *MemoryStore) LoadPlans(ctx context.Context) ([]PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]PlanRecord, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
