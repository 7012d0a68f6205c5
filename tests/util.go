package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
	emailsvc "github.com/trezcool/soko/services/email"
	logsvc "github.com/trezcool/soko/services/logger"
	"github.com/trezcool/soko/storage/database"
	inmemdb "github.com/trezcool/soko/storage/database/inmem"
	boiledrepos "github.com/trezcool/soko/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/soko/storage/database/sqlx"
)

// Env bundles the services of the app, backed by the in-memory database (or Postgres, see NewPostgresEnv).
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Translator ut.Translator
	Validate   *validator.Validate

	DB          *inmemdb.DB // nil on Postgres
	SQLDB       *sqlx.DB    // nil in memory
	Tx          core.Transactor
	UserRepo    user.Repository
	CourseRepo  course.Repository
	BillingRepo billing.Repository
	StatsRepo   course.StatsRepository

	Mail       *emailsvc.ConsoleServiceMock
	UserSvc    user.ServiceInterface
	CourseSvc  *course.Service
	BillingSvc *billing.Service
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}

// NewEnv returns a fresh Env; opts may tweak the config before the services are built.
func NewEnv(t *testing.T, opts ...func(conf *core.Config)) *Env {
	t.Helper()

	db := inmemdb.Open()
	env := &Env{
		DB:          db,
		Tx:          inmemdb.NewTransactor(db),
		UserRepo:    inmemdb.NewUserRepository(db),
		CourseRepo:  inmemdb.NewCourseRepository(db),
		BillingRepo: inmemdb.NewBillingRepository(db),
		StatsRepo:   inmemdb.NewStatsRepository(db),
	}
	env.init(core.NewTestConfig(), opts...)
	return env
}

// NewPostgresEnv is NewEnv backed by the test database, see OpenTestDB.
func NewPostgresEnv(t *testing.T, opts ...func(conf *core.Config)) *Env {
	t.Helper()

	db, conf := OpenTestDB(t)
	env := &Env{
		SQLDB:       db,
		Tx:          database.NewTransactor(db),
		UserRepo:    sqlxrepos.NewUserRepository(db),
		CourseRepo:  sqlxrepos.NewCourseRepository(db),
		BillingRepo: sqlxrepos.NewBillingRepository(db),
		StatsRepo:   boiledrepos.NewStatsRepository(db),
	}
	env.init(conf, opts...)
	return env
}

func (env *Env) init(conf *core.Config, opts ...func(conf *core.Config)) {
	for _, opt := range opts {
		opt(conf)
	}
	logger := NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	env.Conf = conf
	env.Logger = logger
	env.Translator = translator
	env.Validate = validate
	env.Mail = emailsvc.NewConsoleServiceMock(conf, logger)
	env.CourseSvc = course.NewService(env.CourseRepo, env.StatsRepo, env.Tx, course.OptionsFromConfig(conf, logger))
	env.UserSvc = user.NewService(env.UserRepo, env.Mail, conf, user.OnActiveUsersChange(env.CourseSvc.InvalidateAllStats))
	env.BillingSvc = billing.NewService(
		env.BillingRepo, env.Tx, env.CourseSvc, env.UserSvc, env.Mail,
		billing.OptionsFromConfig(conf, logger, nil),
	)
}

// Reset empties the database & the sent emails.
func (env *Env) Reset(t *testing.T) {
	t.Helper()

	if env.SQLDB != nil {
		if _, err := env.SQLDB.Exec(truncateTables); err != nil {
			t.Fatalf("Reset() failed: %v", err)
		}
	} else {
		env.DB.Flush()
	}
	env.Mail.Clear()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName: name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates an active student owning a balance of amount.
func CreateStudent(t *testing.T, env *Env, name, uname, email string, amount core.Money) user.User {
	t.Helper()

	usr := CreateUser(t, env.UserRepo, name, uname, email, "", []string{user.RoleStudent}, true)
	OpenBalance(t, env.BillingRepo, usr.ID, amount)
	return usr
}

func CreateAdmin(t *testing.T, env *Env, name, uname, email string) user.User {
	t.Helper()
	return CreateUser(t, env.UserRepo, name, uname, email, "", []string{user.RoleAdmin}, true)
}

func OpenBalance(t *testing.T, repo billing.Repository, userID string, amount core.Money) billing.Balance {
	t.Helper()

	bal, err := repo.CreateBalance(context.Background(), billing.Balance{
		UserID:    userID,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("OpenBalance() failed: %v", err)
	}
	return bal
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title string,
	price core.Money,
	isAvailable bool,
	createdAt ...time.Time,
) course.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Author:      "Soko Academy",
		Title:       title,
		StartDate:   tstamp.Add(7 * 24 * time.Hour).Truncate(time.Second),
		Price:       price,
		IsAvailable: isAvailable,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateLesson(t *testing.T, repo course.Repository, courseID, title string) course.Lesson {
	t.Helper()

	now := time.Now().UTC()
	l, err := repo.CreateLesson(context.Background(), course.Lesson{
		CourseID:  courseID,
		Title:     title,
		Link:      "https://videos.test/" + title,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

func CreateGroup(t *testing.T, repo course.Repository, courseID, title string, createdAt ...time.Time) course.Group {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	g, err := repo.CreateGroup(context.Background(), course.Group{
		CourseID:  courseID,
		Title:     title,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return g
}

// AddGroupStudents fills the group with the given users.
func AddGroupStudents(t *testing.T, repo course.Repository, groupID string, userIDs ...string) {
	t.Helper()

	for _, id := range userIDs {
		if err := repo.AddGroupStudent(context.Background(), groupID, id); err != nil {
			t.Fatalf("AddGroupStudents() failed: %v", err)
		}
	}
}
