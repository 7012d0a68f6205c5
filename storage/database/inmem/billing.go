package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
)

type billingRepository struct {
	db  *billingTable
	all *DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db.billing, all: db}
}

// Balances

func (repo *billingRepository) CreateBalance(_ context.Context, b billing.Balance, exec ...core.DBExecutor) (billing.Balance, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.balances[b.UserID]; ok {
		return billing.Balance{}, billing.ErrBalanceExists
	}
	repo.db.balances[b.UserID] = b
	return b, nil
}

// GetBalance ignores forUpdate: units of work are serialized by the transactor.
func (repo *billingRepository) GetBalance(_ context.Context, userID string, _ bool, _ ...core.DBExecutor) (billing.Balance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.balances[userID]; ok {
		return b, nil
	}
	return billing.Balance{}, billing.ErrBalanceNotFound
}

func (repo *billingRepository) UpdateBalance(_ context.Context, b billing.Balance, exec ...core.DBExecutor) (billing.Balance, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.balances[b.UserID]; !ok {
		return billing.Balance{}, billing.ErrBalanceNotFound
	}
	if b.Amount.IsNegative() {
		return billing.Balance{}, billing.ErrInsufficientBalance
	}
	repo.db.balances[b.UserID] = b
	return b, nil
}

// Subscriptions

func (repo *billingRepository) subscriptionIndex(match func(s billing.Subscription) bool) int {
	for i, s := range repo.db.subscriptions {
		if match(s) {
			return i
		}
	}
	return -1
}

func (repo *billingRepository) CreateSubscription(_ context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	exists := repo.subscriptionIndex(func(sub billing.Subscription) bool {
		return sub.UserID == s.UserID && sub.CourseID == s.CourseID
	})
	if exists >= 0 {
		return billing.Subscription{}, billing.ErrAlreadySubscribed
	}
	s.ID = uuid.New().String()
	repo.db.subscriptions = append(repo.db.subscriptions, s)
	return s, nil
}

func (repo *billingRepository) GetSubscription(_ context.Context, id string, _ ...core.DBExecutor) (billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if i := repo.subscriptionIndex(func(s billing.Subscription) bool { return s.ID == id }); i >= 0 {
		return repo.db.subscriptions[i], nil
	}
	return billing.Subscription{}, billing.ErrNotFound
}

func (repo *billingRepository) FindSubscription(_ context.Context, userID, courseID string, _ ...core.DBExecutor) (billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	i := repo.subscriptionIndex(func(s billing.Subscription) bool { return s.UserID == userID && s.CourseID == courseID })
	if i >= 0 {
		return repo.db.subscriptions[i], nil
	}
	return billing.Subscription{}, billing.ErrNotFound
}

func (repo *billingRepository) UpdateSubscription(_ context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	i := repo.subscriptionIndex(func(sub billing.Subscription) bool { return sub.ID == s.ID })
	if i < 0 {
		return billing.Subscription{}, billing.ErrNotFound
	}
	repo.db.subscriptions[i].Status = s.Status
	repo.db.subscriptions[i].UpdatedAt = s.UpdatedAt
	return repo.db.subscriptions[i], nil
}

func (repo *billingRepository) QuerySubscriptions(_ context.Context, userID string, _ ...core.DBExecutor) ([]billing.SubscriptionDetail, error) {
	users, courses := repo.all.user, repo.all.course
	users.RLock()
	defer users.RUnlock()
	courses.RLock()
	defer courses.RUnlock()
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]billing.SubscriptionDetail, 0)
	for _, s := range repo.db.subscriptions {
		if s.UserID != userID {
			continue
		}
		usr := users.table[s.UserID]
		subs = append(subs, billing.SubscriptionDetail{
			Subscription: s,
			UserName:     usr.FullName(),
			CourseTitle:  courses.courses[s.CourseID].Title,
		})
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubscribedAt.After(subs[j].SubscribedAt) })
	return subs, nil
}

// Accesses

func (repo *billingRepository) GrantAccess(_ context.Context, a billing.Access, exec ...core.DBExecutor) error {
	defer repo.all.writeLock(exec)()
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, acc := range repo.db.accesses {
		if acc.UserID == a.UserID && acc.CourseID == a.CourseID {
			return nil
		}
	}
	repo.db.accesses = append(repo.db.accesses, a)
	return nil
}

func (repo *billingRepository) QueryAccesses(_ context.Context, userID string, _ ...core.DBExecutor) ([]billing.Access, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accesses := make([]billing.Access, 0)
	for _, a := range repo.db.accesses {
		if a.UserID == userID {
			accesses = append(accesses, a)
		}
	}
	sort.SliceStable(accesses, func(i, j int) bool { return accesses[i].PurchasedAt.After(accesses[j].PurchasedAt) })
	return accesses, nil
}
