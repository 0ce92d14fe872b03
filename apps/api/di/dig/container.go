package dig_container

import (
	"fmt"
	"log"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/codeabode/backend/apps/api/echo"
	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/forum"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/session"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
	emailsvc "github.com/codeabode/backend/services/email"
	logsvc "github.com/codeabode/backend/services/logger"
	"github.com/codeabode/backend/storage/database"
	inmemdb "github.com/codeabode/backend/storage/database/inmem"
	pgrepos "github.com/codeabode/backend/storage/database/postgres"
)

type (
	Options struct {
		InMem      bool   // keep everything in memory; nothing survives a restart
		UnixSocket string // serve on this socket instead of the configured address
	}

	// ShutdownSignal receives a signal whenever the application must shut down gracefully.
	ShutdownSignal chan os.Signal

	ServerParams struct {
		dig.In

		Opts       Options
		Conf       *core.Config
		Logger     core.Logger
		Accounts   account.ServiceInterface
		Sessions   *session.Manager
		Students   *student.Service
		Ledger     *submission.Ledger
		Forum      *forum.Service
		Projects   *project.Service
		Builder    *build.Builder
		Registry   *prometheus.Registry
		Shutdown   ShutdownSignal
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) (core.Logger, error) {
	return logsvc.NewRollbarLogger(conf)
}

func newDB(conf *core.Config, logger core.Logger) (*sqlx.DB, core.DBExecutor, core.Transactor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, database.NewTransactor(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.Mail.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newBuildMetrics(reg *prometheus.Registry) *build.Metrics {
	return build.NewMetrics(reg)
}

func newBuilder(conf *core.Config, store build.Store, logger core.Logger, metrics *build.Metrics) (*build.Builder, error) {
	return build.NewBuilder(conf.Builder, store, logger, metrics)
}

func newQueue(conf *core.Config, builder *build.Builder, logger core.Logger, metrics *build.Metrics) *build.Queue {
	return build.NewQueue(builder, conf.Builder, logger, metrics)
}

func newProjectService(repo project.Repository, gate *access.Gate, queue *build.Queue, builder *build.Builder, logger core.Logger) *project.Service {
	return project.NewService(repo, gate, queue, builder, logger)
}

func newTokenRevoker(m *session.Manager) account.TokenRevoker {
	return m
}

func newShutdownSignal() ShutdownSignal {
	return make(ShutdownSignal, 1)
}

func newServer(p ServerParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   core.NewValidator(p.Translator),
		Translator: p.Translator,
		Accounts:   p.Accounts,
		Sessions:   p.Sessions,
		Students:   p.Students,
		Ledger:     p.Ledger,
		Forum:      p.Forum,
		Projects:   p.Projects,
		Artifacts:  p.Builder,
		Registry:   p.Registry,
		UnixSocket: p.Opts.UnixSocket,
		SignalShutdown: func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
	})
}

// New returns a new dependency injection dig.Container
func New(opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(func() Options { return opts }))
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newRegistry))
	must(c.Provide(newShutdownSignal))

	if opts.InMem {
		provideInMem(c)
	} else {
		providePostgres(c)
	}

	must(c.Provide(session.NewManager))
	must(c.Provide(newTokenRevoker))
	must(c.Provide(account.NewService, dig.As(new(account.ServiceInterface))))
	must(c.Provide(access.NewGate))
	must(c.Provide(student.NewService))
	must(c.Provide(submission.NewLedger))
	must(c.Provide(forum.NewService))
	must(c.Provide(newBuildMetrics))
	must(c.Provide(newBuilder))
	must(c.Provide(newQueue))
	must(c.Provide(newProjectService))
	must(c.Provide(newServer))

	return c
}

func providePostgres(c *dig.Container) {
	must(c.Provide(newDB))
	must(c.Provide(pgrepos.NewAccountRepository, dig.As(new(account.Repository))))
	must(c.Provide(pgrepos.NewSessionRepository, dig.As(new(session.Repository))))
	must(c.Provide(pgrepos.NewAccessRepository, dig.As(new(access.Repository))))
	must(c.Provide(pgrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(pgrepos.NewSubmissionRepository, dig.As(new(submission.Repository))))
	must(c.Provide(pgrepos.NewForumRepository, dig.As(new(forum.Repository))))
	must(c.Provide(pgrepos.NewProjectRepository, dig.As(new(project.Repository), new(build.Store))))
}

func provideInMem(c *dig.Container) {
	must(c.Provide(inmemdb.Open))
	must(c.Provide(func(db *inmemdb.DB) core.Transactor { return db }))
	must(c.Provide(inmemdb.NewAccountRepository, dig.As(new(account.Repository))))
	must(c.Provide(inmemdb.NewSessionRepository, dig.As(new(session.Repository))))
	must(c.Provide(inmemdb.NewAccessRepository, dig.As(new(access.Repository))))
	must(c.Provide(inmemdb.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(inmemdb.NewSubmissionRepository, dig.As(new(submission.Repository))))
	must(c.Provide(inmemdb.NewForumRepository, dig.As(new(forum.Repository))))
	must(c.Provide(inmemdb.NewProjectRepository, dig.As(new(project.Repository), new(build.Store))))
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
