package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "einvoice.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.invoicing.eta.gov.eg", cfg.Portal.APIURL)
	assert.Equal(t, 100, cfg.Portal.PageSize)
	assert.Equal(t, 2, cfg.Portal.Workers)
	assert.Equal(t, 3, cfg.Portal.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Portal.Breaker.FailureThreshold)
	assert.Equal(t, 60, cfg.Portal.Breaker.ResetSecs)
	assert.Equal(t, "downloads/json", cfg.Paths.JSONRoot)
	assert.Equal(t, "outputs", cfg.Paths.Outputs)
	assert.Equal(t, 4, cfg.Extract.Workers)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "Invoice Processing Report", cfg.Mail.SubjectPrefix)
	assert.Equal(t, 3, cfg.Mail.Retry.MaxAttempts)
	assert.Equal(t, 2000, cfg.Mail.Retry.InitialBackoffMS)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.0001)
	assert.Equal(t, 48, cfg.Monitoring.LookbackWindowHours)
	require.Len(t, cfg.Taxpayers, 2)
	assert.Equal(t, "3MP", cfg.Taxpayers[0].Alias)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/einvoice
log:
  level: debug
  format: console
server:
  port: 9090
taxpayers:
  - name: Acme Foods
    alias: ACME
    rin: "200300400"
mail:
  recipients: [ops@example.com, finance@example.com]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Taxpayers, 1)
	assert.Equal(t, "200300400", cfg.Taxpayers[0].RIN)
	assert.Equal(t, []string{"ops@example.com", "finance@example.com"}, cfg.Mail.Recipients)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Portal.PageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("EINVOICE_STORE_DRIVER", "postgres")
	t.Setenv("EINVOICE_LOG_LEVEL", "warn")
	t.Setenv("EINVOICE_PORTAL_CLIENT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "s3cret", cfg.Portal.ClientSecret)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerFileTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "einvoice.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o600))

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json", File: path}))
	zap.L().Info("fresh start")
	_ = zap.L().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "previous run")
	assert.Contains(t, string(data), "fresh start")
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Portal.APIURL = "https://api.example.com"
	cfg.Portal.IdentityURL = "https://id.example.com"
	cfg.Portal.PageSize = 100
	cfg.Portal.Workers = 2
	cfg.Taxpayers = []TaxpayerConfig{{Name: "Acme", Alias: "ACME"}}
	cfg.Paths = PathsConfig{JSONRoot: "json", PDFRoot: "pdf", Outputs: "out", Logs: "logs"}
	cfg.Extract.Workers = 4
	cfg.Mail.Port = 587
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateFetch_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Portal.ClientID = "id"
	cfg.Portal.ClientSecret = "secret"

	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidateFetch_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Taxpayers = []TaxpayerConfig{{Alias: "X"}}
	cfg.Portal.Workers = 0

	err := cfg.Validate("fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal.client_id is required")
	assert.Contains(t, err.Error(), "portal.client_secret is required")
	assert.Contains(t, err.Error(), "taxpayers[0].name is required")
	assert.Contains(t, err.Error(), "portal.workers must be between 1 and 16")
}

func TestValidateSend(t *testing.T) {
	cfg := validDefaults()
	cfg.Mail.Host = "smtp.example.com"

	err := cfg.Validate("send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.from is required")
	assert.Contains(t, err.Error(), "mail.recipients is required")

	cfg.Mail.From = "bot@example.com"
	cfg.Mail.Recipients = []string{"ops@example.com"}
	assert.NoError(t, cfg.Validate("send"))
}

func TestValidateExtract(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("extract"))

	cfg.Extract.Workers = 65
	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.workers must be between 1 and 64")
}

func TestValidateRun_CombinesStages(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal.client_id is required")
	assert.Contains(t, err.Error(), "mail.host is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestTaxpayerAlias(t *testing.T) {
	cfg := validDefaults()
	assert.Equal(t, "ACME", cfg.TaxpayerAlias("Acme"))
	assert.Equal(t, "Other", cfg.TaxpayerAlias("Other"))
}
