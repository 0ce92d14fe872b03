package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address         string
		DebugAddress    string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		SecureCookies   bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	SessionConfig struct {
		TTL time.Duration
	}

	RateLimitConfig struct {
		Requests int // per window, per client IP
		Window   time.Duration
	}

	// BuildTool describes how a deploy method turns a workspace into a web artifact.
	// The workspace path is appended as the last argument.
	BuildTool struct {
		Program   string
		Args      []string
		EntryFile string
		OutputDir string // relative to the workspace
	}

	BuildConfig struct {
		WorkspaceRoot string
		Timeout       time.Duration
		Workers       int
		QueueSize     int
		Tools         map[string]BuildTool
	}

	MailConfig struct {
		DefaultFrom    string
		SendgridAPIKey string
	}

	TextGenConfig struct {
		BaseURL string
		APIKey  string
		Model   string
		Timeout time.Duration
	}

	LogConfig struct {
		Level string
		File  string // optional; rotated by size when set
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		PasswordHashCost int
		RollbarToken     string
		Server           ServerConfig
		Database         DatabaseConfig
		Session          SessionConfig
		RateLimit        RateLimitConfig
		Builder          BuildConfig
		Mail             MailConfig
		TextGen          TextGenConfig
		Log              LogConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Mail.DefaultFrom)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Mail.DefaultFrom}
	}
	return *addr
}

// DefaultBuildTools are the deploy methods known out of the box.
func DefaultBuildTools() map[string]BuildTool {
	return map[string]BuildTool{
		"pygbag": {
			Program:   "python3",
			Args:      []string{"-m", "pygbag", "--build"},
			EntryFile: "main.py",
			OutputDir: filepath.Join("build", "web"),
		},
	}
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("appName", "CodeAbode")
	conf.SetDefault("build", "dev")
	conf.SetDefault("debug", true)
	conf.SetDefault("passwordHashCost", 10)
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverAddress", ":8000")
	conf.SetDefault("serverDebugAddress", ":4000")
	conf.SetDefault("serverReadTimeout", 5*time.Second)
	conf.SetDefault("serverWriteTimeout", 10*time.Second)
	conf.SetDefault("serverShutdownTimeout", 30*time.Second)
	conf.SetDefault("serverSecureCookies", false)

	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", 5432)
	conf.SetDefault("databaseName", "codeabode")
	conf.SetDefault("databaseUser", "codeabode")
	conf.SetDefault("databasePassword", "")
	conf.SetDefault("databaseAdminUser", "")
	conf.SetDefault("databaseAdminPassword", "")
	conf.SetDefault("databaseDisableTLS", true)
	conf.SetDefault("databaseMaxOpenConns", 20)

	conf.SetDefault("sessionTTL", 15*24*time.Hour)

	conf.SetDefault("rateLimitRequests", 10)
	conf.SetDefault("rateLimitWindow", time.Minute)

	conf.SetDefault("buildWorkspaceRoot", "projects")
	conf.SetDefault("buildTimeout", 5*time.Minute)
	conf.SetDefault("buildWorkers", 2)
	conf.SetDefault("buildQueueSize", 32)

	conf.SetDefault("mailDefaultFrom", "CodeAbode <noreply@localhost>")
	conf.SetDefault("mailSendgridAPIKey", "")

	conf.SetDefault("textgenBaseURL", "https://api.openai.com/v1")
	conf.SetDefault("textgenAPIKey", "")
	conf.SetDefault("textgenModel", "gpt-4o-mini")
	conf.SetDefault("textgenTimeout", 2*time.Minute)

	conf.SetDefault("logLevel", "info")
	conf.SetDefault("logFile", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	tools := DefaultBuildTools()
	if prog := conf.GetString("buildPygbagProgram"); prog != "" {
		pygbag := tools["pygbag"]
		pygbag.Program = prog
		tools["pygbag"] = pygbag
	}

	return &Config{
		AppName:          conf.GetString("appName"),
		Build:            conf.GetString("build"),
		Env:              env,
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		WorkDir:          workDir,
		PasswordHashCost: conf.GetInt("passwordHashCost"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         conf.GetString("serverAddress"),
			DebugAddress:    conf.GetString("serverDebugAddress"),
			ReadTimeout:     conf.GetDuration("serverReadTimeout"),
			WriteTimeout:    conf.GetDuration("serverWriteTimeout"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
			SecureCookies:   conf.GetBool("serverSecureCookies"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("databaseEngine"),
			Host:          conf.GetString("databaseHost"),
			Port:          conf.GetInt("databasePort"),
			Name:          conf.GetString("databaseName"),
			User:          conf.GetString("databaseUser"),
			Password:      conf.GetString("databasePassword"),
			AdminUser:     conf.GetString("databaseAdminUser"),
			AdminPassword: conf.GetString("databaseAdminPassword"),
			DisableTLS:    conf.GetBool("databaseDisableTLS"),
			MaxOpenConns:  conf.GetInt("databaseMaxOpenConns"),
		},
		Session: SessionConfig{
			TTL: conf.GetDuration("sessionTTL"),
		},
		RateLimit: RateLimitConfig{
			Requests: conf.GetInt("rateLimitRequests"),
			Window:   conf.GetDuration("rateLimitWindow"),
		},
		Builder: BuildConfig{
			WorkspaceRoot: resolvePath(workDir, conf.GetString("buildWorkspaceRoot")),
			Timeout:       conf.GetDuration("buildTimeout"),
			Workers:       conf.GetInt("buildWorkers"),
			QueueSize:     conf.GetInt("buildQueueSize"),
			Tools:         tools,
		},
		Mail: MailConfig{
			DefaultFrom:    conf.GetString("mailDefaultFrom"),
			SendgridAPIKey: conf.GetString("mailSendgridAPIKey"),
		},
		TextGen: TextGenConfig{
			BaseURL: conf.GetString("textgenBaseURL"),
			APIKey:  conf.GetString("textgenAPIKey"),
			Model:   conf.GetString("textgenModel"),
			Timeout: conf.GetDuration("textgenTimeout"),
		},
		Log: LogConfig{
			Level: conf.GetString("logLevel"),
			File:  conf.GetString("logFile"),
		},
	}
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
