package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkreserve-backend/internal/domain"
)

const minimalYAML = `
server:
  port: 8080
database:
  type: memory
checkin:
  token_secret: "0123456789abcdef0123456789abcdef"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.GRPCPort)
	assert.Equal(t, 24, cfg.Reservation.HoldWindowHours)
	assert.Equal(t, 24*time.Hour, cfg.HoldWindow())
	assert.Zero(t, cfg.ReviewTimeout())
	assert.Equal(t, "daily", cfg.Reservation.PricingRule)
	assert.Equal(t, "RSV", cfg.Reservation.BookingCodePrefix)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, "parkreserve", cfg.Checkin.Issuer)
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.ExpireHolds)
	assert.Equal(t, "reservations", cfg.Events.Exchange)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("HOLD_WINDOW_HOURS", "48")
	t.Setenv("PRICING_RULE", "hourly")
	t.Setenv("REVIEW_TIMEOUT_HOURS", "12")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.HoldWindow())
	assert.Equal(t, "hourly", cfg.Reservation.PricingRule)
	assert.Equal(t, 12*time.Hour, cfg.ReviewTimeout())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing port",
			yaml:    "database:\n  type: memory\ncheckin:\n  token_secret: \"0123456789abcdef0123456789abcdef\"\n",
			wantErr: "invalid server port",
		},
		{
			name:    "negative review timeout",
			yaml:    minimalYAML + "reservation:\n  review_timeout_hours: -1\n",
			wantErr: "review timeout must not be negative",
		},
		{
			name:    "short token secret",
			yaml:    "server:\n  port: 8080\ndatabase:\n  type: memory\ncheckin:\n  token_secret: \"short\"\n",
			wantErr: "at least 32 characters",
		},
		{
			name:    "postgres without host",
			yaml:    "server:\n  port: 8080\ndatabase:\n  type: postgres\ncheckin:\n  token_secret: \"0123456789abcdef0123456789abcdef\"\n",
			wantErr: "database host is required",
		},
		{
			name:    "unknown pricing rule",
			yaml:    minimalYAML + "reservation:\n  pricing_rule: weekly\n",
			wantErr: "unknown pricing rule",
		},
		{
			name:    "bad timezone",
			yaml:    minimalYAML + "reservation:\n  timezone: Mars/Olympus\n",
			wantErr: "invalid timezone",
		},
		{
			name:    "sendgrid without operator",
			yaml:    minimalYAML + "alerts:\n  sendgrid_api_key: SG.key\n",
			wantErr: "operator email is required",
		},
		{
			name:    "zero capacity resource",
			yaml:    minimalYAML + "catalog:\n  resources:\n    - id: 1\n      name: Court\n      type: AMENITY\n      capacity: 0\n",
			wantErr: "invalid catalog resource",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := minimalYAML + `
catalog:
  resources:
    - id: 1
      name: "Pavilion A"
      type: "VENUE"
      capacity: 150
      daily_rate_cents: 900000
      active: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Catalog.Resources, 1)
	assert.Equal(t, domain.ResourceTypeVenue, cfg.Catalog.Resources[0].Type)
	assert.Equal(t, int64(900000), cfg.Catalog.Resources[0].DailyRateCents)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedDevConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "config.dev.yaml"))
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.ExpireHolds)
	assert.Equal(t, "0 0 6 * * *", cfg.Scheduler.ReportFraudEvents)
	assert.Equal(t, 72*time.Hour, cfg.ReviewTimeout())
	assert.Equal(t, "reservations", cfg.Events.Exchange)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "noreply@parkreserve.local", cfg.SMTP.From)
	assert.Len(t, cfg.Catalog.Resources, 3)
}

func TestParse_SMTPEnvOverrides(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.org")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_FROM", "desk@example.org")

	cfg, err := Parse([]byte(minimalYAML + `
alerts:
  operator_email: "ops@example.org"
`))
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "mailer", cfg.SMTP.User)
	assert.Equal(t, "secret", cfg.SMTP.Password)
	assert.Equal(t, "desk@example.org", cfg.SMTP.From)
}

func TestGetDatabaseConnectionString(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		User: "u", Password: "p", Host: "db", Port: 5432, Database: "parks", SSLMode: "disable",
	}}
	assert.Equal(t, "postgres://u:p@db:5432/parks?sslmode=disable", cfg.GetDatabaseConnectionString())
}
