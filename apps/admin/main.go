package main

import (
	"fmt"
	"log"
	"os"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/session"
	"github.com/codeabode/backend/core/student"
	emailsvc "github.com/codeabode/backend/services/email"
	logsvc "github.com/codeabode/backend/services/logger"
	"github.com/codeabode/backend/services/textgen"
	"github.com/codeabode/backend/storage/database"
	pgrepos "github.com/codeabode/backend/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	logger, err := logsvc.NewRollbarLogger(conf)
	errAndDie(err)
	defer func() { _ = logger.Sync() }()

	if err = core.ParseEmailTemplates(); err != nil {
		errAndDie(err)
	}

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	tx := database.NewTransactor(db)
	mailSvc := core.EmailService(emailsvc.NewConsoleService(conf, logger))
	if conf.Mail.SendgridAPIKey != "" {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	sessions := session.NewManager(conf, pgrepos.NewSessionRepository(db))
	gate := access.NewGate(pgrepos.NewAccessRepository(db), tx)
	stuRepo := pgrepos.NewStudentRepository(db)
	projRepo := pgrepos.NewProjectRepository(db)
	builder, err := build.NewBuilder(conf.Builder, projRepo, logger, nil)
	errAndDie(err)
	builds := &inlineBuilds{builder: builder}

	// start CLI
	cli := commandLine{
		db:       db.DB,
		tx:       tx,
		validate: core.NewValidator(core.NewTranslator()),
		accounts: account.NewService(conf, pgrepos.NewAccountRepository(db), tx, sessions, mailSvc),
		gate:     gate,
		students: student.NewService(stuRepo, gate),
		planner:  student.NewPlanner(stuRepo, tx, textgen.NewClient(conf.TextGen), logger),
		projects: project.NewService(projRepo, gate, builds, builder, logger),
		builds:   builds,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
