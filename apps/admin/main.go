package main

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
	cachesvc "github.com/trezcool/soko/services/cache"
	emailsvc "github.com/trezcool/soko/services/email"
	logsvc "github.com/trezcool/soko/services/logger"
	"github.com/trezcool/soko/storage/database"
	boiledrepos "github.com/trezcool/soko/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/soko/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	rollbarLogger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger := core.Logger(rollbarLogger)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	// wire services
	core.ParseEmailTemplates(conf, logger)
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	tx := database.NewTransactor(db)
	courseOpts := course.OptionsFromConfig(conf, logger)
	if conf.Redis.Address != "" {
		client, err := cachesvc.NewRedisClient(ctx, conf)
		if err != nil {
			logger.Fatal("connecting to redis", err)
		}
		defer func() { _ = client.Close() }()
		courseOpts.Cache = cachesvc.NewStatsCache(client, conf.Redis.CacheTTL, logger)
	}
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), boiledrepos.NewStatsRepository(db), tx, courseOpts)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf, user.OnActiveUsersChange(courseSvc.InvalidateAllStats))
	billingSvc := billing.NewService(
		sqlxrepos.NewBillingRepository(db), tx, courseSvc, usrSvc, mailSvc,
		billing.OptionsFromConfig(conf, logger, nil),
	)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		tx:         tx,
		usrRepo:    usrRepo,
		usrSvc:     usrSvc,
		courseSvc:  courseSvc,
		billingSvc: billingSvc,
		logger:     logger,
	}
	err = cli.run(os.Args)

	_ = db.Close()
	rollbarLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("running command", errors.WithStack(err))
		}
		os.Exit(1)
	}
}
