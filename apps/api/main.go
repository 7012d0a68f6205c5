package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"time"

	"go.uber.org/dig"

	echoapi "github.com/trezcool/soko/apps/api/echo"
	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/user"
	logsvc "github.com/trezcool/soko/services/logger"
	metricsvc "github.com/trezcool/soko/services/metrics"
	tracingsvc "github.com/trezcool/soko/services/tracing"
)

type appParams struct {
	dig.In
	Conf      *core.Config
	Rollbar   *logsvc.RollbarLogger
	Logger    core.Logger
	DBLogger  core.Logger  `name:"dbLogger"`
	DBCloser  func()       `name:"dbCloser"`
	DBMigrate func() error `name:"dbMigrate"`
	Metrics   *metricsvc.Collector
	Server    *echoapi.Server
}

func main() {
	conf := core.NewConfig()
	c := newContainer(conf)
	must(c.Invoke(run))
}

func run(p appParams) {
	conf, logger := p.Conf, p.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")
	defer p.Rollbar.Close()
	defer p.DBCloser()

	if err := p.DBMigrate(); err != nil {
		p.DBLogger.Fatal("migrating database", err)
	}

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	stopTracing, err := tracingsvc.Init(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("initializing tracing", err)
	}
	defer stopTracing()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", p.Metrics.Handler())

	go func() {
		debugSrv := &http.Server{
			Addr:              conf.Server.DebugAddress,
			Handler:           http.DefaultServeMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := debugSrv.ListenAndServe(); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := p.Server
	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
