package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sar/pkg/logging"
)

const (
	BackendXLSX = "xlsx"
	BackendCSV  = "csv"
)

// DefaultEnvFiles are read, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnv loads the env files that exist, looking in the working directory
// first and then in the enclosing go.mod root.
func LoadEnv(envFiles []string) (int, error) {
	root := moduleRoot()
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fileExists(file) {
			existing = append(existing, file)
			continue
		}
		if root != "" && !filepath.IsAbs(file) {
			if p := filepath.Join(root, file); fileExists(p) {
				existing = append(existing, p)
			}
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type RegistryOptions struct {
	Path          string `env:"SAR_REGISTRY_PATH" envDefault:"registry.xlsx" validate:"required"`
	Backend       string `env:"SAR_REGISTRY_BACKEND" envDefault:"xlsx"`
	ConfigPath    string `env:"SAR_CONFIG_PATH"`
	BackupEnabled bool   `env:"SAR_BACKUP_ENABLED" envDefault:"true"`
	BackupDir     string `env:"SAR_BACKUP_DIR"`
	MaxIssues     int    `env:"SAR_MAX_ISSUES" envDefault:"0" validate:"min=0"`
	Watch         bool   `env:"SAR_WATCH" envDefault:"false"`
}

type ReportOptions struct {
	DSN    string `env:"SAR_REPORT_DSN"`
	Driver string `env:"SAR_REPORT_DRIVER" envDefault:"postgres" validate:"required"`
}

// Enabled reports whether compute runs are persisted to SQL.
func (r ReportOptions) Enabled() bool {
	return strings.TrimSpace(r.DSN) != ""
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus" validate:"startswith=/"`
}

type Configuration struct {
	Registry   RegistryOptions
	Report     ReportOptions
	Prometheus PrometheusOptions

	ServerPort       int    `env:"PORT" envDefault:"3200" validate:"min=1,max=65535"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error" validate:"oneof=silent error warn info debug"`
	LogPath          string `env:"LOG_PATH"`
	SocketAddress    string `env:"-"`

	logFile *os.File
	logger  *logrus.Logger
}

// Load reads env files, parses and validates the environment and opens the
// logger. The caller owns the result and must Unload it.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, err
	}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return nil, err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}
	if c.GoAppEnvironment == "production" {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return c, nil
}

func (c *Configuration) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	backend := strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if backend == "" {
		backend = BackendXLSX
	}
	switch backend {
	case BackendXLSX, BackendCSV:
	default:
		return fmt.Errorf("invalid SAR_REGISTRY_BACKEND=%q (expected xlsx|csv)", c.Registry.Backend)
	}
	c.Registry.Backend = backend
	return nil
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

// Unload closes the log file, if any.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}
