package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
)

const subscriptionColumns = `id, user_id, course_id, status, subscribed_at, updated_at`

type balanceRow struct {
	UserID    string     `db:"user_id"`
	Amount    core.Money `db:"amount"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (r balanceRow) toBalance() billing.Balance {
	return billing.Balance{UserID: r.UserID, Amount: r.Amount, UpdatedAt: r.UpdatedAt.UTC()}
}

type subscriptionRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	CourseID     string    `db:"course_id"`
	Status       string    `db:"status"`
	SubscribedAt time.Time `db:"subscribed_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r subscriptionRow) toSubscription() billing.Subscription {
	return billing.Subscription{
		ID:           r.ID,
		UserID:       r.UserID,
		CourseID:     r.CourseID,
		Status:       r.Status,
		SubscribedAt: r.SubscribedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) billing.Repository {
	return &billingRepository{db: db}
}

// Balances

func (repo *billingRepository) CreateBalance(ctx context.Context, b billing.Balance, exec ...core.DBExecutor) (billing.Balance, error) {
	q := `INSERT INTO balance (user_id, amount, updated_at) VALUES ($1, $2, $3)`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, q, b.UserID, b.Amount, b.UpdatedAt.UTC()); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return billing.Balance{}, billing.ErrBalanceExists
		}
		return billing.Balance{}, errors.Wrap(err, "inserting balance")
	}
	return b, nil
}

func (repo *billingRepository) GetBalance(ctx context.Context, userID string, forUpdate bool, exec ...core.DBExecutor) (billing.Balance, error) {
	if !isUUID(userID) {
		return billing.Balance{}, billing.ErrBalanceNotFound
	}
	q := `SELECT user_id, amount, updated_at FROM balance WHERE user_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row balanceRow
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, userID); err != nil {
		return billing.Balance{}, trapNoRowsErr(err, billing.ErrBalanceNotFound, "finding balance")
	}
	return row.toBalance(), nil
}

func (repo *billingRepository) UpdateBalance(ctx context.Context, b billing.Balance, exec ...core.DBExecutor) (billing.Balance, error) {
	q := `UPDATE balance SET amount = $2, updated_at = $3 WHERE user_id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, b.UserID, b.Amount, b.UpdatedAt.UTC())
	if err != nil {
		return billing.Balance{}, errors.Wrap(err, "updating balance")
	}
	if err = checkAffected(res, billing.ErrBalanceNotFound, "updating balance"); err != nil {
		return billing.Balance{}, err
	}
	return b, nil
}

// Subscriptions

func (repo *billingRepository) CreateSubscription(ctx context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	s.ID = uuid.New().String()
	q := `INSERT INTO subscription (` + subscriptionColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		s.ID, s.UserID, s.CourseID, s.Status, s.SubscribedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return billing.Subscription{}, billing.ErrAlreadySubscribed
		}
		return billing.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return s, nil
}

func (repo *billingRepository) GetSubscription(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Subscription, error) {
	if !isUUID(id) {
		return billing.Subscription{}, billing.ErrNotFound
	}
	var row subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscription WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, id); err != nil {
		return billing.Subscription{}, trapNoRowsErr(err, billing.ErrNotFound, "finding subscription")
	}
	return row.toSubscription(), nil
}

func (repo *billingRepository) FindSubscription(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (billing.Subscription, error) {
	if !isUUID(userID, courseID) {
		return billing.Subscription{}, billing.ErrNotFound
	}
	var row subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscription WHERE user_id = $1 AND course_id = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, userID, courseID); err != nil {
		return billing.Subscription{}, trapNoRowsErr(err, billing.ErrNotFound, "finding subscription")
	}
	return row.toSubscription(), nil
}

func (repo *billingRepository) UpdateSubscription(ctx context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	q := `UPDATE subscription SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, s.ID, s.Status, s.UpdatedAt.UTC())
	if err != nil {
		return billing.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if err = checkAffected(res, billing.ErrNotFound, "updating subscription"); err != nil {
		return billing.Subscription{}, err
	}
	return s, nil
}

func (repo *billingRepository) QuerySubscriptions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]billing.SubscriptionDetail, error) {
	if !isUUID(userID) {
		return []billing.SubscriptionDetail{}, nil
	}
	var rows []struct {
		subscriptionRow
		FirstName   string `db:"first_name"`
		LastName    string `db:"last_name"`
		Username    string `db:"username"`
		CourseTitle string `db:"course_title"`
	}
	q := `SELECT s.id, s.user_id, s.course_id, s.status, s.subscribed_at, s.updated_at,
			u.first_name, u.last_name, u.username, c.title AS course_title
		FROM subscription s
		JOIN "user" u ON u.id = s.user_id
		JOIN course c ON c.id = s.course_id
		WHERE s.user_id = $1
		ORDER BY s.subscribed_at DESC`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}

	subs := make([]billing.SubscriptionDetail, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, billing.SubscriptionDetail{
			Subscription: r.toSubscription(),
			UserName:     fullName(r.FirstName, r.LastName, r.Username),
			CourseTitle:  r.CourseTitle,
		})
	}
	return subs, nil
}

// Accesses

func (repo *billingRepository) GrantAccess(ctx context.Context, a billing.Access, exec ...core.DBExecutor) error {
	q := `INSERT INTO access (user_id, course_id, purchased_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, q, a.UserID, a.CourseID, a.PurchasedAt.UTC()); err != nil {
		return errors.Wrap(err, "granting access")
	}
	return nil
}

func (repo *billingRepository) QueryAccesses(ctx context.Context, userID string, exec ...core.DBExecutor) ([]billing.Access, error) {
	if !isUUID(userID) {
		return []billing.Access{}, nil
	}
	var rows []struct {
		UserID      string    `db:"user_id"`
		CourseID    string    `db:"course_id"`
		PurchasedAt time.Time `db:"purchased_at"`
	}
	q := `SELECT user_id, course_id, purchased_at FROM access WHERE user_id = $1 ORDER BY purchased_at DESC`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying accesses")
	}
	accesses := make([]billing.Access, 0, len(rows))
	for _, r := range rows {
		accesses = append(accesses, billing.Access{UserID: r.UserID, CourseID: r.CourseID, PurchasedAt: r.PurchasedAt.UTC()})
	}
	return accesses, nil
}
