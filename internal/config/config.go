package config

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultListenAddr          = ":8080"
	defaultDBPath              = "showcase.db"
	defaultEngineName          = "engine"
	defaultSchemaUpdate        = "true"
	defaultDeploymentResources = "loan-approval.bpmn"
	defaultNATSSubjectPrefix   = "showcase"

	envListenAddr          = "SHOWCASE_LISTEN_ADDR"
	envDBPath              = "SHOWCASE_DB_PATH"
	envLogLevel            = "SHOWCASE_LOG_LEVEL"
	envLogFile             = "SHOWCASE_LOG_FILE"
	envEngineName          = "SHOWCASE_ENGINE_NAME"
	envSchemaUpdate        = "SHOWCASE_DB_SCHEMA_UPDATE"
	envJobExecutorActivate = "SHOWCASE_JOB_EXECUTOR_ACTIVATE"
	envDeploymentResources = "SHOWCASE_DEPLOYMENT_RESOURCES"
	envSecurityRules       = "SHOWCASE_SECURITY_RULES"
	envAdminUser           = "SHOWCASE_ADMIN_USER"
	envAdminPassword       = "SHOWCASE_ADMIN_PASSWORD"
	envNATSURL             = "SHOWCASE_NATS_URL"
	envNATSSubjectPrefix   = "SHOWCASE_NATS_SUBJECT_PREFIX"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	LogFile    string

	EngineName          string
	SchemaUpdate        string
	JobExecutorActivate bool
	DeploymentResources []string

	// SecurityRules is the path of the security filter rules file. Empty
	// selects the built-in rules.
	SecurityRules string
	AdminUser     string
	AdminPassword string

	NATSURL           string
	NATSSubjectPrefix string
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:          defaultListenAddr,
		DBPath:              defaultDBPath,
		LogLevel:            slog.LevelInfo,
		EngineName:          defaultEngineName,
		SchemaUpdate:        defaultSchemaUpdate,
		DeploymentResources: []string{defaultDeploymentResources},
		NATSSubjectPrefix:   defaultNATSSubjectPrefix,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.LogFile = os.Getenv(envLogFile)
	if v := os.Getenv(envEngineName); v != "" {
		cfg.EngineName = v
	}
	if v := os.Getenv(envSchemaUpdate); v != "" {
		cfg.SchemaUpdate = strings.ToLower(v)
	}
	if v := os.Getenv(envJobExecutorActivate); v != "" {
		cfg.JobExecutorActivate, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv(envDeploymentResources); v != "" {
		cfg.DeploymentResources = splitList(v)
	}
	cfg.SecurityRules = os.Getenv(envSecurityRules)
	cfg.AdminUser = os.Getenv(envAdminUser)
	cfg.AdminPassword = os.Getenv(envAdminPassword)
	cfg.NATSURL = os.Getenv(envNATSURL)
	if v := os.Getenv(envNATSSubjectPrefix); v != "" {
		cfg.NATSSubjectPrefix = v
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// LogWriter returns stdout, teed into a rotating log file when LogFile is set.
// The returned closer releases the file.
func (c Config) LogWriter(stdout io.Writer) (io.Writer, io.Closer) {
	if c.LogFile == "" {
		return stdout, nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(stdout, file), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
