package echoapi

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/forum"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/session"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
)

type (
	// ArtifactLocator finds the directory holding the built files of a project.
	ArtifactLocator interface {
		Artifact(projectID int, deployMethod string) (string, bool)
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Accounts       account.ServiceInterface
		Sessions       *session.Manager
		Students       *student.Service
		Ledger         *submission.Ledger
		Forum          *forum.Service
		Projects       *project.Service
		Artifacts      ArtifactLocator
		Registry       *prometheus.Registry // nil disables /metrics
		UnixSocket     string               // listen on this socket instead of Conf.Server.Address
		DisableReqLogs bool
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		// artifacts resolve relative URLs against the trailing slash
		Skipper: func(ctx echo.Context) bool { return strings.HasPrefix(ctx.Request().URL.Path, "/play/") },
	}))
	if s.opts.Registry != nil {
		s.app.Use(newHTTPMetrics(s.opts.Registry).middleware())
	}
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.GET("/", home)
	if s.opts.Registry != nil {
		s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))
	}

	g := s.app.Group("/api")
	authed := sessionMiddleware(s.opts.Sessions, s.opts.Accounts)
	limited := newRateLimiter(conf.RateLimit).middleware()

	registerAccountAPI(g, authed, limited, s.opts)
	registerStudentAPI(g, authed, s.opts)
	registerForumAPI(g, authed, s.opts)
	registerProjectAPI(g, authed, s.opts)
	registerPlayground(s.app, s.opts.Projects, s.opts.Artifacts)
}

// Start serves on the unix socket when one is configured, on the TCP address otherwise.
// It returns nil once the server was stopped.
func (s *server) Start() error {
	addr := s.opts.Conf.Server.Address
	if s.opts.UnixSocket != "" {
		if err := os.Remove(s.opts.UnixSocket); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "removing stale socket")
		}
		l, err := net.Listen("unix", s.opts.UnixSocket)
		if err != nil {
			return errors.Wrap(err, "listening on unix socket")
		}
		s.app.Listener = l
		addr = ""
	}
	if err := s.app.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "CodeAbode API")
}
