package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	Taxpayers  []TaxpayerConfig `yaml:"taxpayers" mapstructure:"taxpayers"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	FTP        FTPConfig        `yaml:"ftp" mapstructure:"ftp"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PortalConfig holds e-invoicing portal API settings.
type PortalConfig struct {
	APIURL       string        `yaml:"api_url" mapstructure:"api_url"`
	IdentityURL  string        `yaml:"identity_url" mapstructure:"identity_url"`
	ClientID     string        `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string        `yaml:"client_secret" mapstructure:"client_secret"`
	PageSize     int           `yaml:"page_size" mapstructure:"page_size"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	Retry        RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig stops calling the portal after repeated failures.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetSecs        int `yaml:"reset_secs" mapstructure:"reset_secs"`
}

// RetryConfig configures retries of transient portal and SMTP failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// TaxpayerConfig is a receiving company whose inbox is processed. Alias names
// its report folder and attachment.
type TaxpayerConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Alias string `yaml:"alias" mapstructure:"alias"`
	RIN   string `yaml:"rin" mapstructure:"rin"`
}

// PathsConfig holds the working directory roots.
type PathsConfig struct {
	JSONRoot string `yaml:"json_root" mapstructure:"json_root"`
	PDFRoot  string `yaml:"pdf_root" mapstructure:"pdf_root"`
	Outputs  string `yaml:"outputs" mapstructure:"outputs"`
	Logs     string `yaml:"logs" mapstructure:"logs"`
}

// ExtractConfig configures the report stage.
type ExtractConfig struct {
	VocabularyFile string `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
	Workers        int    `yaml:"workers" mapstructure:"workers"`
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host          string      `yaml:"host" mapstructure:"host"`
	Port          int         `yaml:"port" mapstructure:"port"`
	Username      string      `yaml:"username" mapstructure:"username"`
	Password      string      `yaml:"password" mapstructure:"password"`
	From          string      `yaml:"from" mapstructure:"from"`
	Recipients    []string    `yaml:"recipients" mapstructure:"recipients"`
	SubjectPrefix string      `yaml:"subject_prefix" mapstructure:"subject_prefix"`
	TimeoutSecs   int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry         RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// FTPConfig configures the optional report drop.
type FTPConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures failure alerts. Alerts are only sent when
// WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, receives a copy of every entry. It is truncated on
	// each start.
	File string `yaml:"file" mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EINVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.api_url", "https://api.invoicing.eta.gov.eg")
	v.SetDefault("portal.identity_url", "https://id.eta.gov.eg")
	v.SetDefault("portal.client_id", "")
	v.SetDefault("portal.client_secret", "")
	v.SetDefault("portal.page_size", 100)
	v.SetDefault("portal.rate_limit", 5.0)
	v.SetDefault("portal.timeout_secs", 60)
	v.SetDefault("portal.workers", 2)
	v.SetDefault("portal.retry.max_attempts", 3)
	v.SetDefault("portal.retry.initial_backoff_ms", 500)
	v.SetDefault("portal.retry.max_backoff_ms", 10000)
	v.SetDefault("portal.breaker.failure_threshold", 5)
	v.SetDefault("portal.breaker.reset_secs", 60)
	v.SetDefault("taxpayers", []map[string]any{
		{"name": "شركه ثري ام بي", "alias": "3MP"},
		{"name": "مكتب علمي ام ام فارما", "alias": "MMP"},
	})
	v.SetDefault("paths.json_root", "downloads/json")
	v.SetDefault("paths.pdf_root", "downloads/pdf")
	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("paths.logs", "logs")
	v.SetDefault("extract.vocabulary_file", "")
	v.SetDefault("extract.workers", 4)
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.recipients", []string{})
	v.SetDefault("mail.subject_prefix", "Invoice Processing Report")
	v.SetDefault("mail.timeout_secs", 60)
	v.SetDefault("mail.retry.max_attempts", 3)
	v.SetDefault("mail.retry.initial_backoff_ms", 2000)
	v.SetDefault("mail.retry.max_backoff_ms", 30000)
	v.SetDefault("ftp.url", "")
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "einvoice.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 48)
	v.SetDefault("monitoring.check_interval_secs", 900)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of fetch,
// extract, send, run or serve.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "fetch":
		errs = c.validateFetch()
	case "extract":
		errs = c.validateExtract()
	case "send":
		errs = c.validateSend()
	case "run":
		errs = append(errs, c.validateFetch()...)
		errs = append(errs, c.validateExtract()...)
		errs = append(errs, c.validateSend()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateFetch() []string {
	var errs []string
	if c.Portal.ClientID == "" {
		errs = append(errs, "portal.client_id is required")
	}
	if c.Portal.ClientSecret == "" {
		errs = append(errs, "portal.client_secret is required")
	}
	if c.Portal.APIURL == "" || c.Portal.IdentityURL == "" {
		errs = append(errs, "portal.api_url and portal.identity_url are required")
	}
	if c.Portal.PageSize < 1 || c.Portal.PageSize > 100 {
		errs = append(errs, "portal.page_size must be between 1 and 100")
	}
	if c.Portal.Workers < 1 || c.Portal.Workers > 16 {
		errs = append(errs, "portal.workers must be between 1 and 16")
	}
	if len(c.Taxpayers) == 0 {
		errs = append(errs, "at least one taxpayer is required")
	}
	for i, tp := range c.Taxpayers {
		if tp.Name == "" {
			errs = append(errs, fmt.Sprintf("taxpayers[%d].name is required", i))
		}
	}
	if c.Paths.JSONRoot == "" || c.Paths.PDFRoot == "" || c.Paths.Logs == "" {
		errs = append(errs, "paths.json_root, paths.pdf_root and paths.logs are required")
	}
	return errs
}

func (c *Config) validateExtract() []string {
	var errs []string
	if c.Paths.JSONRoot == "" || c.Paths.Outputs == "" {
		errs = append(errs, "paths.json_root and paths.outputs are required")
	}
	if c.Extract.Workers < 1 || c.Extract.Workers > 64 {
		errs = append(errs, "extract.workers must be between 1 and 64")
	}
	return errs
}

func (c *Config) validateSend() []string {
	var errs []string
	if c.Mail.Host == "" {
		errs = append(errs, "mail.host is required")
	}
	if c.Mail.Port <= 0 {
		errs = append(errs, "mail.port must be > 0")
	}
	if c.Mail.From == "" {
		errs = append(errs, "mail.from is required")
	}
	if len(c.Mail.Recipients) == 0 {
		errs = append(errs, "mail.recipients is required")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required for postgres"}
	}
	return nil
}

// TaxpayerAlias returns the alias configured for a taxpayer name, or the
// name itself.
func (c *Config) TaxpayerAlias(name string) string {
	for _, tp := range c.Taxpayers {
		if tp.Name == name && tp.Alias != "" {
			return tp.Alias
		}
	}
	return name
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return eris.Wrap(err, "config: create log directory")
		}
		if err := os.WriteFile(cfg.File, nil, 0o600); err != nil {
			return eris.Wrap(err, "config: truncate log file")
		}
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
