package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
server:
  port: 9090
database:
  host: db.internal
  name: records
  password: from-file
jwt:
  secret: access-secret-0123456789
  refresh_secret: refresh-secret-0123456789
security:
  cookie_key: 0123456789abcdef0123456789abcdef
outbox:
  poll_interval: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, testConfig))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenTTL())
	assert.Equal(t, "records.events", cfg.Redis.Channel)

	loc, err := cfg.Clinic.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, testConfig))
	t.Setenv("RECORDS_DB_PASSWORD", "from-env")
	t.Setenv("RECORDS_DB_PORT", "6543")
	t.Setenv("RECORDS_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("RECORDS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RECORDS_TIMEZONE", "Asia/Kolkata")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Contains(t, cfg.Database.DSN(), "password=from-env")

	loc, err := cfg.Clinic.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, testConfig))
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Security.CookieKey = "short"
	cfg.JWT.RefreshSecret = cfg.JWT.Secret
	cfg.Clinic.Timezone = "Mars/Olympus_Mons"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie_key")
	assert.Contains(t, err.Error(), "must differ")
	assert.Contains(t, err.Error(), "unknown clinic timezone")
}

func TestLoadConfig_RejectsMissingSecrets(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "database:\n  host: x\n  name: y\n"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}
