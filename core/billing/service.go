package billing

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

const tracerName = "github.com/trezcool/soko/core/billing"

var (
	// errors
	ErrNotFound            = errors.New("subscription not found")
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrBalanceExists       = errors.New("balance already opened")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceLimit        = errors.New("balance limit exceeded")
	ErrAlreadySubscribed   = errors.New("already subscribed to this course")
	ErrCourseUnavailable   = errors.New("course is not available")
)

type (
	Repository interface {
		// CreateBalance returns ErrBalanceExists if the user already has one.
		CreateBalance(ctx context.Context, b Balance, exec ...core.DBExecutor) (Balance, error)
		// GetBalance locks the balance row until the end of the transaction when forUpdate is set.
		GetBalance(ctx context.Context, userID string, forUpdate bool, exec ...core.DBExecutor) (Balance, error)
		UpdateBalance(ctx context.Context, b Balance, exec ...core.DBExecutor) (Balance, error)

		CreateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		GetSubscription(ctx context.Context, id string, exec ...core.DBExecutor) (Subscription, error)
		FindSubscription(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Subscription, error)
		UpdateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		// QuerySubscriptions returns the subscriptions of the user, latest first.
		QuerySubscriptions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]SubscriptionDetail, error)

		// GrantAccess is a no-op if the user can already access the course.
		GrantAccess(ctx context.Context, a Access, exec ...core.DBExecutor) error
		QueryAccesses(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Access, error)
	}

	// CourseService is the part of course.Service billing depends on.
	CourseService interface {
		Get(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error)
		Enroll(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) (string, error)
		Unenroll(ctx context.Context, courseID, userID string, exec ...core.DBExecutor) error
		InvalidateStats(ctx context.Context, courseIDs ...string)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Metrics interface {
		PaymentProcessed(amount core.Money)
		PaymentRejected(reason string)
		StudentEnrolled(grouped bool)
	}

	Options struct {
		WelcomeBonus core.Money
		Logger       core.Logger
		Metrics      Metrics // optional
	}

	Service struct {
		repo    Repository
		tx      core.Transactor
		courses CourseService
		users   UserGetter
		mailSvc core.EmailService
		opts    Options
		tracer  trace.Tracer
	}
)

func OptionsFromConfig(conf *core.Config, logger core.Logger, metrics Metrics) Options {
	return Options{
		WelcomeBonus: conf.Billing.WelcomeBonus,
		Logger:       logger,
		Metrics:      metrics,
	}
}

func NewService(
	repo Repository,
	tx core.Transactor,
	courses CourseService,
	users UserGetter,
	mailSvc core.EmailService,
	opts Options,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(opts.Logger, "opts.Logger"),
	).CheckAndPanic()

	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		courses: courses,
		users:   users,
		mailSvc: mailSvc,
		opts:    opts,
		tracer:  otel.Tracer(tracerName),
	}
}

// Balances

// OpenBalance credits the welcome bonus to a new user.
func (svc *Service) OpenBalance(ctx context.Context, userID string, exec ...core.DBExecutor) (Balance, error) {
	return svc.repo.CreateBalance(ctx, Balance{
		UserID:    userID,
		Amount:    svc.opts.WelcomeBonus,
		UpdatedAt: time.Now().UTC(),
	}, exec...)
}

func (svc *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	return svc.repo.GetBalance(ctx, userID, false)
}

// AddBonus tops up the balance of the user.
func (svc *Service) AddBonus(ctx context.Context, userID string, amount core.Money) (Balance, error) {
	if !amount.IsPositive() {
		return Balance{}, ErrInvalidAmount
	}

	var bal Balance
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if bal, err = svc.repo.GetBalance(ctx, userID, true, exec); err != nil {
			return err
		}
		if err = bal.AddBonus(amount); err != nil {
			return err
		}
		bal.UpdatedAt = time.Now().UTC()
		bal, err = svc.repo.UpdateBalance(ctx, bal, exec)
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// SendWelcome emails the welcome bonus to a newly registered user.
func (svc *Service) SendWelcome(usr user.User, bal Balance) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Welcome",
		TemplateName: "welcome",
		TemplateData: map[string]string{
			"Name":  usr.FullName(),
			"Bonus": bal.Amount.String(),
		},
	})
}

// Payment

// Pay debits the course price from the balance of the user, then subscribes & enrolls them in the course.
// The whole operation is atomic: nothing changes when it fails.
func (svc *Service) Pay(ctx context.Context, userID, courseID string) (Receipt, error) {
	ctx, span := svc.tracer.Start(ctx, "billing.Pay", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("course.id", courseID),
	))
	defer span.End()

	var (
		crs  course.Course
		rcpt Receipt
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if crs, err = svc.courses.Get(ctx, courseID, exec); err != nil {
			return err
		}
		if !crs.IsAvailable {
			return ErrCourseUnavailable
		}

		bal, err := svc.repo.GetBalance(ctx, userID, true, exec)
		if err != nil {
			return err
		}

		sub, err := svc.repo.FindSubscription(ctx, userID, courseID, exec)
		resubscribe := err == nil
		if err != nil && errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding subscription")
		}
		if resubscribe && sub.IsActive() {
			return ErrAlreadySubscribed
		}

		if err = bal.DeductBonus(crs.Price); err != nil {
			return err
		}
		now := time.Now().UTC()
		bal.UpdatedAt = now
		if bal, err = svc.repo.UpdateBalance(ctx, bal, exec); err != nil {
			return errors.Wrap(err, "updating balance")
		}

		if resubscribe {
			sub.Status = StatusActive
			sub.UpdatedAt = now
			sub, err = svc.repo.UpdateSubscription(ctx, sub, exec)
		} else {
			sub, err = svc.repo.CreateSubscription(ctx, Subscription{
				UserID:       userID,
				CourseID:     courseID,
				Status:       StatusActive,
				SubscribedAt: now,
				UpdatedAt:    now,
			}, exec)
		}
		if err != nil {
			return errors.Wrap(err, "saving subscription")
		}

		if err = svc.repo.GrantAccess(ctx, Access{UserID: userID, CourseID: courseID, PurchasedAt: now}, exec); err != nil {
			return errors.Wrap(err, "granting access")
		}

		groupID, err := svc.courses.Enroll(ctx, courseID, userID, exec)
		if err != nil {
			return errors.Wrap(err, "enrolling student")
		}

		rcpt = Receipt{Subscription: sub, Balance: bal, GroupID: groupID}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		svc.opts.Metrics.PaymentRejected(rejectionReason(err))
		return Receipt{}, err
	}

	span.SetAttributes(attribute.String("group.id", rcpt.GroupID))
	svc.courses.InvalidateStats(ctx, courseID)
	svc.opts.Metrics.PaymentProcessed(crs.Price)
	svc.opts.Metrics.StudentEnrolled(rcpt.GroupID != "")
	svc.sendReceipt(ctx, crs, rcpt)
	return rcpt, nil
}

func (svc *Service) sendReceipt(ctx context.Context, crs course.Course, rcpt Receipt) {
	usr, err := svc.users.GetByID(ctx, rcpt.Subscription.UserID)
	if err != nil {
		svc.opts.Logger.Error(errors.Wrap(err, "sending payment receipt").Error())
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Payment Receipt",
		TemplateName: "payment_receipt",
		TemplateData: map[string]string{
			"Name":        usr.FullName(),
			"CourseID":    crs.ID,
			"CourseTitle": crs.Title,
			"Price":       crs.Price.String(),
			"Balance":     rcpt.Balance.Amount.String(),
		},
	})
}

func rejectionReason(err error) string {
	switch errors.Cause(err) {
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrAlreadySubscribed:
		return "already_subscribed"
	case ErrCourseUnavailable:
		return "course_unavailable"
	case ErrBalanceNotFound, course.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Subscriptions

func (svc *Service) Subscriptions(ctx context.Context, userID string) ([]SubscriptionDetail, error) {
	return svc.repo.QuerySubscriptions(ctx, userID)
}

func (svc *Service) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *Service) HasActiveSubscription(ctx context.Context, userID, courseID string) (bool, error) {
	sub, err := svc.repo.FindSubscription(ctx, userID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return sub.IsActive(), nil
}

// Deactivate ends the subscription; the student leaves the groups of the course but keeps its Access.
func (svc *Service) Deactivate(ctx context.Context, id string) (Subscription, error) {
	var sub Subscription
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.GetSubscription(ctx, id, exec); err != nil {
			return err
		}
		if !sub.IsActive() {
			return nil
		}
		sub.Status = StatusInactive
		sub.UpdatedAt = time.Now().UTC()
		if sub, err = svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating subscription")
		}
		return errors.Wrap(svc.courses.Unenroll(ctx, sub.CourseID, sub.UserID, exec), "unenrolling student")
	})
	if err != nil {
		return Subscription{}, err
	}
	svc.courses.InvalidateStats(ctx, sub.CourseID)
	return sub, nil
}

func (svc *Service) Accesses(ctx context.Context, userID string) ([]Access, error) {
	return svc.repo.QueryAccesses(ctx, userID)
}

type noopMetrics struct{}

func (noopMetrics) PaymentProcessed(core.Money) {}
func (noopMetrics) PaymentRejected(string)      {}
func (noopMetrics) StudentEnrolled(bool)        {}
