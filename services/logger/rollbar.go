package logsvc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rberrors "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/codeabode/backend/core"
)

var consoleOut = os.Stderr // mockable

// consoleSink is the console writer. Pipes and terminals cannot be fsynced; those errors are dropped.
type consoleSink struct {
	*os.File
}

func (s consoleSink) Sync() error {
	err := s.File.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// RollbarLogger writes structured logs with zap and reports them to Rollbar when a token is set.
type RollbarLogger struct {
	zl      *zap.SugaredLogger
	rollbar bool
	exit    func(code int)
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(conf *core.Config) (*RollbarLogger, error) {
	zl, err := newZap(conf)
	if err != nil {
		return nil, err
	}

	enabled := conf.RollbarToken != ""
	rollbar.SetEnabled(enabled)
	if enabled {
		host, _ := os.Hostname()
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(rberrors.StackTracer)
	}
	return &RollbarLogger{zl: zl.Sugar(), rollbar: enabled, exit: os.Exit}, nil
}

// NewNopLogger discards everything; for tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zap.NewNop().Sugar(), exit: os.Exit}
}

func newZap(conf *core.Config) (*zap.Logger, error) {
	level := zap.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(conf.Log.Level))); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", conf.Log.Level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	consoleEncoder := zapcore.NewJSONEncoder(encoderConfig)
	if conf.Debug {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.Lock(consoleSink{consoleOut}), level)}

	if conf.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(conf.Log.File), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating log dir")
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.Log.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
		fileEncoder := zap.NewProductionEncoderConfig()
		fileEncoder.TimeKey = "time"
		fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel)), nil
}

// Sync flushes buffered logs.
func (l *RollbarLogger) Sync() error {
	if l.rollbar {
		rollbar.Wait()
	}
	return l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, fields []interface{}) {
	var personSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Person:
			// only set one Person
			if !personSet {
				if l.rollbar {
					rollbar.SetPerson(a.ID, a.Username, a.Email)
				}
				fields = append(fields, "account", a.Username)
				personSet = true
			}
		case error:
			rbArgs = append(rbArgs, a)
			fields = append(fields, "error", fmt.Sprintf("%+v", a))
		case map[string]interface{}:
			rbArgs = append(rbArgs, a)
			for k, v := range a {
				fields = append(fields, k, v)
			}
		default:
			rbArgs = append(rbArgs, a)
			fields = append(fields, "extra", a)
		}
	}
	if !personSet && l.rollbar {
		rollbar.ClearPerson()
	}
	return rbArgs, fields
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Debug(rbArgs...)
	}
	l.zl.Debugw(msg, fields...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Info(rbArgs...)
	}
	l.zl.Infow(msg, fields...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Warning(rbArgs...)
	}
	l.zl.Warnw(msg, fields...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Error(rbArgs...)
	}
	l.zl.Errorw(msg, fields...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Critical(rbArgs...)
		rollbar.Wait()
	}
	l.zl.Errorw(msg, fields...)
	_ = l.zl.Sync()
	l.exit(1)
}
