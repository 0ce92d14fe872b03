package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/codeabode/backend/apps/api/di/dig"
	echoapi "github.com/codeabode/backend/apps/api/echo"
	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/build"
)

type appParams struct {
	dig.In

	Conf     *core.Config
	Logger   core.Logger
	DB       *sqlx.DB `optional:"true"`
	Server   echoapi.Server
	Queue    *build.Queue
	Store    build.Store
	Shutdown dig_container.ShutdownSignal
}

type syncer interface {
	Sync() error
}

func main() {
	unixSocket := flag.String("unix", "", "serve on this unix socket instead of the configured address")
	inMem := flag.Bool("inmem", false, "keep all data in memory (development only)")
	flag.Parse()

	c := dig_container.New(dig_container.Options{InMem: *inMem, UnixSocket: *unixSocket})
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(p appParams) {
	conf, logger := p.Conf, p.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	if s, ok := logger.(syncer); ok {
		defer func() { _ = s.Sync() }()
	}
	defer logger.Info("Application stopped")

	if err := core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	if p.DB != nil {
		defer func() {
			if err := p.DB.Close(); err != nil {
				logger.Error("closing database", err)
			}
		}()
	}

	// =========================================================================
	// Start Build Workers

	p.Queue.Start()
	n, err := p.Queue.Recover(context.Background(), p.Store)
	if err != nil {
		logger.Error(fmt.Sprintf("recovering pending builds: %v", err), err)
	} else if n > 0 {
		logger.Info(fmt.Sprintf("%d pending builds re-enqueued", n))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugAddress != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	signal.Notify(p.Shutdown, syscall.SIGINT, syscall.SIGTERM)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- p.Server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-p.Shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := p.Server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}

	// running builds get the rest of the shutdown budget, then are killed and marked failed
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := p.Queue.Shutdown(ctx); err != nil {
		logger.Warn(fmt.Sprintf("build queue shutdown: %v", err), err)
	}
}
