package main

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/soko/apps/api/echo"
	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
	cachesvc "github.com/trezcool/soko/services/cache"
	emailsvc "github.com/trezcool/soko/services/email"
	logsvc "github.com/trezcool/soko/services/logger"
	metricsvc "github.com/trezcool/soko/services/metrics"
	"github.com/trezcool/soko/storage/database"
	inmemdb "github.com/trezcool/soko/storage/database/inmem"
	boiledrepos "github.com/trezcool/soko/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/soko/storage/database/sqlx"
)

const engineInMem = "inmem"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// storage holds the repositories of the configured database engine.
	storage struct {
		dig.Out
		Tx        core.Transactor
		Users     user.Repository
		Courses   course.Repository
		Stats     course.StatsRepository
		Billing   billing.Repository
		DBCloser  func()       `name:"dbCloser"`
		DBMigrate func() error `name:"dbMigrate"`
	}

	cacheParam struct {
		dig.In
		Cache course.StatsCache `optional:"true"`
	}
)

func newRollbarLogger(conf *core.Config) *logsvc.RollbarLogger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newLogger(l *logsvc.RollbarLogger) core.Logger {
	return l
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (storage, error) {
	logger := loggerParam.Logger

	if conf.Database.Engine == engineInMem {
		logger.Info("using the in-memory database, data will be lost on exit")
		db := inmemdb.Open()
		return storage{
			Tx:        inmemdb.NewTransactor(db),
			Users:     inmemdb.NewUserRepository(db),
			Courses:   inmemdb.NewCourseRepository(db),
			Stats:     inmemdb.NewStatsRepository(db),
			Billing:   inmemdb.NewBillingRepository(db),
			DBCloser:  func() {},
			DBMigrate: func() error { return nil },
		}, nil
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return storage{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return storage{}, errors.Wrap(err, "opening database")
	}
	return storage{
		Tx:      database.NewTransactor(db),
		Users:   sqlxrepos.NewUserRepository(db),
		Courses: sqlxrepos.NewCourseRepository(db),
		Stats:   boiledrepos.NewStatsRepository(db),
		Billing: sqlxrepos.NewBillingRepository(db),
		DBCloser: func() {
			if err := db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		},
		DBMigrate: func() error {
			return database.Migrate(db.DB, nil, "up")
		},
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newStatsCache(conf *core.Config, logger core.Logger) (course.StatsCache, error) {
	client, err := cachesvc.NewRedisClient(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return cachesvc.NewStatsCache(client, conf.Redis.CacheTTL, logger), nil
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newCourseService(
	conf *core.Config,
	logger core.Logger,
	repo course.Repository,
	statsRepo course.StatsRepository,
	tx core.Transactor,
	cache cacheParam,
) *course.Service {
	opts := course.OptionsFromConfig(conf, logger)
	opts.Cache = cache.Cache
	return course.NewService(repo, statsRepo, tx, opts)
}

// newUserService drops the cached course stats whenever the number of active users changes.
func newUserService(
	conf *core.Config,
	repo user.Repository,
	mailSvc core.EmailService,
	courseSvc *course.Service,
) user.ServiceInterface {
	return user.NewService(repo, mailSvc, conf, user.OnActiveUsersChange(courseSvc.InvalidateAllStats))
}

func newBillingService(
	conf *core.Config,
	logger core.Logger,
	repo billing.Repository,
	tx core.Transactor,
	courseSvc *course.Service,
	userSvc user.ServiceInterface,
	mailSvc core.EmailService,
	metrics *metricsvc.Collector,
) *billing.Service {
	return billing.NewService(repo, tx, courseSvc, userSvc, mailSvc, billing.OptionsFromConfig(conf, logger, metrics))
}

func newServerDeps(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	tx core.Transactor,
	userSvc user.ServiceInterface,
	courseSvc *course.Service,
	billingSvc *billing.Service,
	metrics *metricsvc.Collector,
) echoapi.ServerDeps {
	return echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Tx:         tx,
		UserSvc:    userSvc,
		CourseSvc:  courseSvc,
		BillingSvc: billingSvc,
		Metrics:    metrics,
	}
}

// newContainer returns the dependency injection container of the API.
func newContainer(conf *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(func() *core.Config { return conf }))
	must(c.Provide(newRollbarLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	if conf.Redis.Address != "" {
		must(c.Provide(newStatsCache))
	}
	must(c.Provide(metricsvc.NewCollector))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newUserService))
	must(c.Provide(newCourseService))
	must(c.Provide(newBillingService))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "failed to provide dependency"))
	}
}
