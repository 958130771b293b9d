package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Storage       StorageConfig       `mapstructure:"storage"`
	OCR           OCRConfig           `mapstructure:"ocr"`
	Expense       ExpenseConfig       `mapstructure:"expense"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Source          string        `mapstructure:"source" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type SecurityConfig struct {
	JWTAccessSecret      string        `mapstructure:"jwt_access_secret" validate:"required,min=16"`
	JWTRefreshSecret     string        `mapstructure:"jwt_refresh_secret" validate:"required,min=16"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" validate:"min=1m"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" validate:"min=1h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" validate:"min=4,max=15"`
	DemoMode             bool          `mapstructure:"demo_mode"`
	DefaultPermissions   []string      `mapstructure:"default_permissions"`
}

type StorageConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	InMemory       bool   `mapstructure:"in_memory"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" validate:"min=1"`
}

type OCRConfig struct {
	Engine     string          `mapstructure:"engine" validate:"oneof=mock ollama tesseract chain"`
	Timeout    time.Duration   `mapstructure:"timeout"`
	MaxWorkers int             `mapstructure:"max_workers" validate:"min=1"`
	QueueSize  int             `mapstructure:"queue_size" validate:"min=1"`
	Ollama     OllamaConfig    `mapstructure:"ollama"`
	Tesseract  TesseractConfig `mapstructure:"tesseract"`
}

type OllamaConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

type TesseractConfig struct {
	Binary   string `mapstructure:"binary"`
	Language string `mapstructure:"language"`
}

type ExpenseConfig struct {
	DefaultCurrency       string  `mapstructure:"default_currency" validate:"iso4217"`
	AutoApprovalThreshold float64 `mapstructure:"auto_approval_threshold" validate:"min=0"`
}

type CacheConfig struct {
	RedisURL string `mapstructure:"redis_url"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// SetDefaults registers a default for every key so the service boots
// without a config file: SQLite in memory, mock OCR, demo login.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_server.port", 3002)
	v.SetDefault("http_server.allowed_origins", "http://localhost:3000")
	v.SetDefault("http_server.read_header_timeout", 5*time.Second)
	v.SetDefault("http_server.read_timeout", 30*time.Second)
	v.SetDefault("http_server.write_timeout", 60*time.Second)
	v.SetDefault("http_server.idle_timeout", 120*time.Second)
	v.SetDefault("http_server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.source", "file::memory:?cache=shared")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("security.jwt_access_secret", "expenseflow-demo-access-secret")
	v.SetDefault("security.jwt_refresh_secret", "expenseflow-demo-refresh-secret")
	v.SetDefault("security.access_token_duration", 15*time.Minute)
	v.SetDefault("security.refresh_token_duration", 7*24*time.Hour)
	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("security.demo_mode", true)
	v.SetDefault("security.default_permissions", []string{
		PermissionViewExpenses, PermissionCreateExpenses, PermissionUploadDocuments,
	})

	v.SetDefault("storage.base_dir", "uploads")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("ocr.engine", "mock")
	v.SetDefault("ocr.timeout", 60*time.Second)
	v.SetDefault("ocr.max_workers", 2)
	v.SetDefault("ocr.queue_size", 16)
	v.SetDefault("ocr.ollama.url", "http://localhost:11434")
	v.SetDefault("ocr.ollama.model", "llava")
	v.SetDefault("ocr.tesseract.binary", "tesseract")
	v.SetDefault("ocr.tesseract.language", "eng")

	v.SetDefault("expense.default_currency", "USD")
	v.SetDefault("expense.auto_approval_threshold", 0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.OCR.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ocr config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	for _, origin := range c.Origins() {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// Origins splits the comma separated allowed_origins value.
func (c *ServerConfig) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// IsInMemory reports whether the SQLite source lives only in memory.
func (c *DatabaseConfig) IsInMemory() bool {
	return c.Driver == "sqlite" && strings.Contains(c.Source, ":memory:")
}

func (c *OCRConfig) Validate() error {
	if c.Engine == "ollama" || c.Engine == "chain" {
		if _, err := url.ParseRequestURI(c.Ollama.URL); err != nil {
			return fmt.Errorf("invalid ollama url %q: %w", c.Ollama.URL, err)
		}
		if c.Ollama.Model == "" {
			return errors.New("ollama model is required")
		}
	}
	if (c.Engine == "tesseract" || c.Engine == "chain") && c.Tesseract.Binary == "" {
		return errors.New("tesseract binary is required")
	}
	return nil
}

// AutoApprovalLimit returns the threshold as a decimal; zero disables auto approval.
func (c *ExpenseConfig) AutoApprovalLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.AutoApprovalThreshold)
}
