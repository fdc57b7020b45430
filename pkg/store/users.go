package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/storage"
	"github.com/platinummonkey/finance/pkg/synclist"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// UsersHolder keeps every known user in exactly one partition: the partition
// of the plan it is subscribed to, or the inactive partition.
//
// Lock order is user lock, then holder mutex. The holder mutex only guards
// short index and partition edits and is never held while waiting for a
// user lock, so a user held across a remote call blocks nobody else.
type UsersHolder struct {
	store storage.UserStore
	clock timeutil.Clock
	log   *logrus.Logger

	mu         sync.Mutex
	index      map[models.UserID]*models.FinanceUser
	partitions map[string]*synclist.List[*models.FinanceUser]
	inactive   *synclist.List[*models.FinanceUser]
}

// NewUsersHolder creates an empty holder. Call Reload to read the persisted
// users.
func NewUsersHolder(store storage.UserStore, clock timeutil.Clock, log *logrus.Logger) *UsersHolder {
	if log == nil {
		log = logrus.New()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &UsersHolder{
		store:      store,
		clock:      clock,
		log:        log,
		index:      make(map[models.UserID]*models.FinanceUser),
		partitions: make(map[string]*synclist.List[*models.FinanceUser]),
		inactive:   synclist.New[*models.FinanceUser](),
	}
}

// Reload replaces the in-memory users with the persisted set
func (h *UsersHolder) Reload(ctx context.Context) error {
	users, err := h.store.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to load users: %v", models.ErrInternal, err)
	}

	index := make(map[models.UserID]*models.FinanceUser, len(users))
	partitions := make(map[string]*synclist.List[*models.FinanceUser])
	inactive := synclist.New[*models.FinanceUser]()

	for _, user := range users {
		index[user.Key()] = user
		if user.Subscribed {
			partition, ok := partitions[user.PlanName]
			if !ok {
				partition = synclist.New[*models.FinanceUser]()
				partitions[user.PlanName] = partition
			}
			partition.AddItem(user)
		} else {
			inactive.AddItem(user)
		}
	}

	h.mu.Lock()
	h.index = index
	h.partitions = partitions
	h.inactive = inactive
	h.mu.Unlock()

	h.log.Infof("Loaded %d users in %d plans", len(users), len(partitions))
	return nil
}

// partition returns the users of a plan, creating the partition if needed.
// Caller must hold h.mu.
func (h *UsersHolder) partition(planName string) *synclist.List[*models.FinanceUser] {
	partition, ok := h.partitions[planName]
	if !ok {
		partition = synclist.New[*models.FinanceUser]()
		h.partitions[planName] = partition
	}
	return partition
}

// LockUser returns the user with the given identity, locked. The caller
// must unlock it.
func (h *UsersHolder) LockUser(id, provider string) (*models.FinanceUser, error) {
	for {
		user, err := h.GetUserByID(id, provider)
		if err != nil {
			return nil, err
		}

		user.Lock()
		if h.isCurrent(user) {
			return user, nil
		}
		// removed or replaced by a reload while we waited
		user.Unlock()
	}
}

func (h *UsersHolder) isCurrent(user *models.FinanceUser) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index[user.Key()] == user
}

// RegisterUser subscribes a user to a plan, creating the user if it is new.
// Inactive users keep their history when they subscribe again.
func (h *UsersHolder) RegisterUser(ctx context.Context, id, provider, planName string) error {
	key := models.UserID{ID: id, Provider: provider}
	for {
		user, err := h.LockUser(id, provider)
		if err == nil {
			defer user.Unlock()
			return h.subscribeLocked(ctx, user, planName)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		if user, ok := h.insert(key, planName); ok {
			defer user.Unlock()
			h.log.WithFields(logrus.Fields{"user": key.String(), "plan": planName}).Info("Registered user")
			return h.save(ctx, user)
		}
	}
}

// insert adds a new subscribed user and returns it locked. It fails when
// another registration created the user first.
func (h *UsersHolder) insert(key models.UserID, planName string) (*models.FinanceUser, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.index[key]; exists {
		return nil, false
	}

	// nobody else can reference the new user yet, so this never blocks
	user := models.NewFinanceUser(key.ID, key.Provider)
	user.Lock()
	user.Subscribe(planName, h.clock.NowMillis())
	h.index[key] = user
	h.partition(planName).AddItem(user)
	return user, true
}

func (h *UsersHolder) subscribeLocked(ctx context.Context, user *models.FinanceUser, planName string) error {
	if user.Subscribed {
		return fmt.Errorf("%w: %s", models.ErrUserAlreadyExists, user.Key())
	}

	user.Subscribe(planName, h.clock.NowMillis())

	h.mu.Lock()
	h.inactive.RemoveItem(user)
	h.partition(planName).AddItem(user)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"user": user.Key().String(), "plan": planName}).Info("Registered user")
	return h.save(ctx, user)
}

// UnregisterUser moves a subscribed user to the inactive partition. The user
// keeps its invoices, credits and debts.
func (h *UsersHolder) UnregisterUser(ctx context.Context, id, provider string) error {
	user, err := h.LockUser(id, provider)
	if err != nil {
		return err
	}
	defer user.Unlock()
	return h.UnregisterLocked(ctx, user)
}

// UnregisterLocked is UnregisterUser for a caller holding the user lock
func (h *UsersHolder) UnregisterLocked(ctx context.Context, user *models.FinanceUser) error {
	if !user.Subscribed {
		return fmt.Errorf("%w: user %s is not subscribed to any plan", models.ErrInvalidParameter, user.Key())
	}

	planName := user.PlanName
	user.Unsubscribe(h.clock.NowMillis())

	h.mu.Lock()
	h.partition(planName).RemoveItem(user)
	h.inactive.AddItem(user)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"user": user.Key().String(), "plan": planName}).Info("Unregistered user")
	return h.save(ctx, user)
}

// RemoveUser permanently deletes an inactive user
func (h *UsersHolder) RemoveUser(ctx context.Context, id, provider string) error {
	user, err := h.LockUser(id, provider)
	if err != nil {
		return err
	}
	defer user.Unlock()
	return h.RemoveLocked(ctx, user)
}

// RemoveLocked is RemoveUser for a caller holding the user lock
func (h *UsersHolder) RemoveLocked(ctx context.Context, user *models.FinanceUser) error {
	if user.Subscribed {
		return fmt.Errorf("%w: user %s is still subscribed to plan %s",
			models.ErrInvalidParameter, user.Key(), user.PlanName)
	}

	h.mu.Lock()
	h.inactive.RemoveItem(user)
	delete(h.index, user.Key())
	h.mu.Unlock()

	if err := h.store.RemoveUser(ctx, user.Key()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: failed to remove user %s: %v", models.ErrInternal, user.Key(), err)
	}

	h.log.WithField("user", user.Key().String()).Info("Removed user")
	return nil
}

// ChangePlan moves a subscribed user to another plan partition
func (h *UsersHolder) ChangePlan(ctx context.Context, id, provider, newPlanName string) error {
	user, err := h.LockUser(id, provider)
	if err != nil {
		return err
	}
	defer user.Unlock()
	return h.ChangePlanLocked(ctx, user, newPlanName)
}

// ChangePlanLocked is ChangePlan for a caller holding the user lock
func (h *UsersHolder) ChangePlanLocked(ctx context.Context, user *models.FinanceUser, newPlanName string) error {
	if !user.Subscribed {
		return fmt.Errorf("%w: user %s is not subscribed to any plan", models.ErrInvalidParameter, user.Key())
	}

	oldPlanName := user.PlanName
	if oldPlanName == newPlanName {
		return fmt.Errorf("%w: user %s is already subscribed to plan %s",
			models.ErrInvalidParameter, user.Key(), newPlanName)
	}
	now := h.clock.NowMillis()
	user.Unsubscribe(now)
	user.Subscribe(newPlanName, now)

	// both edits under one hold: a user is never seen in two partitions
	h.mu.Lock()
	h.partition(oldPlanName).RemoveItem(user)
	h.partition(newPlanName).AddItem(user)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"user": user.Key().String(),
		"from": oldPlanName,
		"to":   newPlanName,
	}).Info("Changed user plan")
	return h.save(ctx, user)
}

// GetUserByID returns the user with the given identity
func (h *UsersHolder) GetUserByID(id, provider string) (*models.FinanceUser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookup(id, provider)
}

func (h *UsersHolder) lookup(id, provider string) (*models.FinanceUser, error) {
	key := models.UserID{ID: id, Provider: provider}
	user, ok := h.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, key)
	}
	return user, nil
}

// GetRegisteredUsersByPlan returns the live partition of a plan. Sweeps walk
// it with a cursor while registrations mutate it.
func (h *UsersHolder) GetRegisteredUsersByPlan(planName string) *synclist.List[*models.FinanceUser] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.partition(planName)
}

// InactiveUsers returns the partition of unsubscribed users
func (h *UsersHolder) InactiveUsers() *synclist.List[*models.FinanceUser] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inactive
}

// PlanNames returns the names of every non-empty partition
func (h *UsersHolder) PlanNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.partitions))
	for name, partition := range h.partitions {
		if !partition.IsEmpty() {
			names = append(names, name)
		}
	}
	return names
}

// SaveUser persists a user. Caller must hold the user lock.
func (h *UsersHolder) SaveUser(ctx context.Context, user *models.FinanceUser) error {
	return h.save(ctx, user)
}

func (h *UsersHolder) save(ctx context.Context, user *models.FinanceUser) error {
	if err := h.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("%w: failed to save user %s: %v", models.ErrInternal, user.Key(), err)
	}
	return nil
}
