package billing

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/soko/core"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Balance holds the bonuses of a user; its Amount is never negative.
type Balance struct {
	UserID    string     `json:"user_id"`
	Amount    core.Money `json:"amount"`
	UpdatedAt time.Time  `json:"updated_at"` // UTC
}

// AddBonus credits amount (> 0) to the balance, unless it would exceed core.MaxMoney.
func (b *Balance) AddBonus(amount core.Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(core.MaxMoney.Sub(b.Amount)) {
		return ErrBalanceLimit
	}
	b.Amount = b.Amount.Add(amount)
	return nil
}

// DeductBonus debits amount from the balance, unless it would go negative.
func (b *Balance) DeductBonus(amount core.Money) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if b.Amount.LessThan(amount) {
		return ErrInsufficientBalance
	}
	b.Amount = b.Amount.Sub(amount)
	return nil
}

type Subscription struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	Status       string    `json:"status"`
	SubscribedAt time.Time `json:"subscribed_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"`    // UTC
}

func (s Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// SubscriptionDetail is a Subscription along with the names of its user & course.
type SubscriptionDetail struct {
	Subscription
	UserName    string `json:"user_name"`
	CourseTitle string `json:"course_title"`
}

// Access grants a user the content of a purchased course.
type Access struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	PurchasedAt time.Time `json:"purchased_at"` // UTC
}

// Receipt is the outcome of a successful payment.
type Receipt struct {
	Subscription Subscription `json:"subscription"`
	Balance      Balance      `json:"balance"`
	GroupID      string       `json:"group_id,omitempty"`
}

type PaymentRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	CourseID string `json:"course_id" validate:"required,uuid"`
}

func (pr *PaymentRequest) Validate(validate *validator.Validate) error {
	pr.UserID = core.CleanString(pr.UserID, true /* lower */)
	pr.CourseID = core.CleanString(pr.CourseID, true /* lower */)
	return validate.Struct(pr)
}

type TopUp struct {
	Amount core.Money `json:"amount" validate:"gt=0"`
}

func (tu *TopUp) Validate(validate *validator.Validate) error {
	return validate.Struct(tu)
}
