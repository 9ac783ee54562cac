package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")

	cfg, err := Get()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "INR", cfg.Payments.Currency)
	assert.Equal(t, 24*time.Hour, cfg.Payments.PendingTTL)
	assert.Equal(t, 3, cfg.Notifications.MaxAttempts)
	assert.Equal(t, "https://api.razorpay.com", cfg.Razorpay.BaseURL)
	assert.False(t, cfg.Spaces.Enabled())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.IsProduction())
}

func TestGetFromEnvironment(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_live_x")
	t.Setenv("PAYMENT_PENDING_TTL", "2h")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DO_SPACES_ACCESS_KEY", "a")
	t.Setenv("DO_SPACES_SECRET_KEY", "b")
	t.Setenv("DO_SPACES_BUCKET", "receipts")
	t.Setenv("DO_SPACES_REGION", "blr1")

	cfg, err := Get()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "rzp_live_x", cfg.Razorpay.KeyID)
	assert.Equal(t, 2*time.Hour, cfg.Payments.PendingTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Spaces.Enabled())
}

func TestGetRejectsMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := Get()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:      JWTConfig{Secret: "secret"},
			Razorpay: RazorpayConfig{KeyID: "rzp_test", KeySecret: "s"},
			Database: DatabaseConfig{Driver: "postgres"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"missing razorpay key", func(c *Config) { c.Razorpay.KeyID = "" }, "RAZORPAY_KEY_ID"},
		{"missing razorpay secret", func(c *Config) { c.Razorpay.KeySecret = "" }, "RAZORPAY_KEY_SECRET"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
