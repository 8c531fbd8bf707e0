package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/utils"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Reservation ReservationConfig `yaml:"reservation"`
	Checkin     CheckinConfig     `yaml:"checkin"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Events      EventsConfig      `yaml:"events"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Type         string `yaml:"type"` // "postgres" or "memory"
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// ReservationConfig contains booking policy
type ReservationConfig struct {
	HoldWindowHours   int    `yaml:"hold_window_hours"`
	PricingRule       string `yaml:"pricing_rule"` // "daily", "hourly" or "auto"
	BookingCodePrefix string `yaml:"booking_code_prefix"`
	Timezone          string `yaml:"timezone"`
	AllowPastDates    bool   `yaml:"allow_past_dates"`
	// Pending requests hold their slot; 0 keeps them until reviewed
	ReviewTimeoutHours int `yaml:"review_timeout_hours"`
}

// CheckinConfig contains check-in token signing settings
type CheckinConfig struct {
	TokenSecret string `yaml:"token_secret"`
	Issuer      string `yaml:"issuer"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireHolds       string `yaml:"expire_holds"`
	ReportFraudEvents string `yaml:"report_fraud_events"`
}

// AlertsConfig contains operator alert settings. Alerts are logged only when
// no SendGrid key is configured.
type AlertsConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	OperatorEmail  string `yaml:"operator_email"`
}

// SMTPConfig contains SMTP settings, used for alerts when SendGrid is not
// configured
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// EventsConfig contains broker settings for reservation events. Events are
// logged only when no AMQP URL is configured.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// CatalogConfig seeds the memory store
type CatalogConfig struct {
	Resources []domain.Resource `yaml:"resources"`
}

// Load reads configuration from a YAML file, a sibling .env file and the
// environment, in that order of precedence (environment wins).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_TYPE"); val != "" {
		c.Database.Type = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	// Reservation policy
	if val := os.Getenv("HOLD_WINDOW_HOURS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Reservation.HoldWindowHours)
	}
	if val := os.Getenv("REVIEW_TIMEOUT_HOURS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Reservation.ReviewTimeoutHours)
	}
	if val := os.Getenv("PRICING_RULE"); val != "" {
		c.Reservation.PricingRule = val
	}

	// Secrets
	if val := os.Getenv("CHECKIN_TOKEN_SECRET"); val != "" {
		c.Checkin.TokenSecret = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Alerts.SendGridAPIKey = val
	}
	if val := os.Getenv("AMQP_URL"); val != "" {
		c.Events.AMQPURL = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		c.SMTP.From = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

// Validate checks the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 || c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	// Database validation
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	switch c.Database.Type {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	// Reservation policy
	if c.Reservation.HoldWindowHours == 0 {
		c.Reservation.HoldWindowHours = 24
	}
	if c.Reservation.HoldWindowHours < 0 {
		return fmt.Errorf("hold window must be positive: %d", c.Reservation.HoldWindowHours)
	}
	if c.Reservation.ReviewTimeoutHours < 0 {
		return fmt.Errorf("review timeout must not be negative: %d", c.Reservation.ReviewTimeoutHours)
	}
	if c.Reservation.PricingRule == "" {
		c.Reservation.PricingRule = string(utils.PricingRuleDaily)
	}
	if !utils.PricingRule(c.Reservation.PricingRule).Valid() {
		return fmt.Errorf("unknown pricing rule: %s", c.Reservation.PricingRule)
	}
	if c.Reservation.BookingCodePrefix == "" {
		c.Reservation.BookingCodePrefix = "RSV"
	}
	if c.Reservation.Timezone == "" {
		c.Reservation.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Reservation.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Reservation.Timezone, err)
	}

	// Check-in tokens
	if c.Checkin.TokenSecret == "" {
		return fmt.Errorf("check-in token secret is required")
	}
	if len(c.Checkin.TokenSecret) < 32 {
		return fmt.Errorf("check-in token secret must be at least 32 characters")
	}
	if c.Checkin.Issuer == "" {
		c.Checkin.Issuer = "parkreserve"
	}

	// Scheduler defaults
	if c.Scheduler.ExpireHolds == "" {
		c.Scheduler.ExpireHolds = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.ReportFraudEvents == "" {
		c.Scheduler.ReportFraudEvents = "0 0 6 * * *" // 6 AM daily
	}

	// Alerts
	if c.Alerts.SendGridAPIKey != "" && c.Alerts.OperatorEmail == "" {
		return fmt.Errorf("operator email is required when SendGrid alerts are enabled")
	}
	if c.Alerts.FromName == "" {
		c.Alerts.FromName = "Reservations"
	}
	if c.SMTP.Host != "" {
		if c.SMTP.Port == 0 {
			c.SMTP.Port = 587
		}
		if c.SMTP.From == "" {
			c.SMTP.From = c.Alerts.FromEmail
		}
		if c.Alerts.OperatorEmail == "" {
			return fmt.Errorf("operator email is required when SMTP alerts are enabled")
		}
	}

	// Events
	if c.Events.Exchange == "" {
		c.Events.Exchange = "reservations"
	}

	for _, r := range c.Catalog.Resources {
		if r.ID <= 0 || r.Name == "" || r.Capacity <= 0 || !r.Type.Valid() {
			return fmt.Errorf("invalid catalog resource %d (%s)", r.ID, r.Name)
		}
	}

	return nil
}

// HoldWindow returns how long an unpaid reservation keeps its slot
func (c *Config) HoldWindow() time.Duration {
	return time.Duration(c.Reservation.HoldWindowHours) * time.Hour
}

// ReviewTimeout returns how long a request may wait for review, or 0 when
// requests never lapse
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Reservation.ReviewTimeoutHours) * time.Hour
}

// Location returns the timezone reservation dates are interpreted in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reservation.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
