package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // clinic timezones must resolve on minimal images

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Clinic    ClinicConfig    `mapstructure:"clinic"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	RefreshSecret      string `mapstructure:"refresh_secret"`
	ExpiryMinutes      int    `mapstructure:"expiry_minutes"`
	RefreshExpiryHours int    `mapstructure:"refresh_expiry_hours"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	CookieKey      string   `mapstructure:"cookie_key"`
	CookieSecure   bool     `mapstructure:"cookie_secure"`
	BcryptCost     int      `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type WorkerConfig struct {
	HealthPort          int           `mapstructure:"health_port"`
	AuditRetentionDays  int           `mapstructure:"audit_retention_days"`
	OutboxRetentionDays int           `mapstructure:"outbox_retention_days"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
}

type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
	AdminName     string `mapstructure:"admin_name"`
}

// ClinicConfig holds settings of the practice itself.
type ClinicConfig struct {
	// Timezone is the IANA zone that decides which calendar day "today" is.
	Timezone string `mapstructure:"timezone"`
}

// Location loads the clinic timezone, falling back to UTC when unset.
func (c ClinicConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown clinic timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// envOverrides lists the settings that deployments inject through RECORDS_* variables.
type envOverrides struct {
	DBHost         string   `envconfig:"DB_HOST"`
	DBPort         int      `envconfig:"DB_PORT"`
	DBUser         string   `envconfig:"DB_USER"`
	DBPassword     string   `envconfig:"DB_PASSWORD"`
	DBName         string   `envconfig:"DB_NAME"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	JWTRefresh     string   `envconfig:"JWT_REFRESH_SECRET"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	SMTPPassword   string   `envconfig:"SMTP_PASSWORD"`
	CookieKey      string   `envconfig:"COOKIE_KEY"`
	Port           int      `envconfig:"PORT"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	AdminPassword  string   `envconfig:"ADMIN_PASSWORD"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	Timezone       string   `envconfig:"TIMEZONE"`
}

const envPrefix = "RECORDS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("jwt.expiry_minutes", 60)
	v.SetDefault("jwt.refresh_expiry_hours", 24*7)

	v.SetDefault("redis.channel", "records.events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 30*time.Second)

	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("worker.audit_retention_days", 0)
	v.SetDefault("worker.outbox_retention_days", 7)
	v.SetDefault("worker.cleanup_interval", time.Hour)
	v.SetDefault("bootstrap.admin_name", "Administrator")
	v.SetDefault("clinic.timezone", "UTC")
}

// LoadConfig reads config.yml (or the file named by CONFIG_FILE) and applies
// RECORDS_* environment overrides on top.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if env.DBHost != "" {
		c.Database.Host = env.DBHost
	}
	if env.DBPort != 0 {
		c.Database.Port = env.DBPort
	}
	if env.DBUser != "" {
		c.Database.User = env.DBUser
	}
	if env.DBPassword != "" {
		c.Database.Password = env.DBPassword
	}
	if env.DBName != "" {
		c.Database.Name = env.DBName
	}
	if env.JWTSecret != "" {
		c.JWT.Secret = env.JWTSecret
	}
	if env.JWTRefresh != "" {
		c.JWT.RefreshSecret = env.JWTRefresh
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
	}
	if env.SMTPPassword != "" {
		c.SMTP.Password = env.SMTPPassword
	}
	if env.CookieKey != "" {
		c.Security.CookieKey = env.CookieKey
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.AdminPassword != "" {
		c.Bootstrap.AdminPassword = env.AdminPassword
	}
	if len(env.AllowedOrigins) > 0 {
		c.Security.AllowedOrigins = env.AllowedOrigins
	}
	if env.Timezone != "" {
		c.Clinic.Timezone = env.Timezone
	}
	return nil
}

// Validate rejects configurations the API cannot safely start with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		problems = append(problems, "database.host and database.name are required")
	}
	if len(c.JWT.Secret) < 16 {
		problems = append(problems, "jwt.secret must be at least 16 characters")
	}
	if len(c.JWT.RefreshSecret) < 16 {
		problems = append(problems, "jwt.refresh_secret must be at least 16 characters")
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.JWT.RefreshSecret {
		problems = append(problems, "jwt.refresh_secret must differ from jwt.secret")
	}
	switch len(c.Security.CookieKey) {
	case 16, 24, 32:
	default:
		problems = append(problems, "security.cookie_key must be 16, 24 or 32 bytes")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		problems = append(problems, "outbox settings must be positive")
	}

	if _, err := c.Clinic.Location(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// AccessTokenTTL and RefreshTokenTTL convert the configured JWT lifetimes.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

func (c JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshExpiryHours) * time.Hour
}
