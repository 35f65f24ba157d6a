package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg := Load()
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "log", cfg.MailDriver)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("BCRYPT_COST", "11")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 11, cfg.BcryptCost)
	assert.Equal(t, "amqp", cfg.MailDriver, "production never defaults to the log driver")
	assert.False(t, cfg.MailRelay)
}

func TestLoadMailRelay(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAIL_DRIVER", "amqp")
	t.Setenv("MAIL_RELAY_ENABLED", "yes")

	cfg := Load()
	assert.True(t, cfg.MailRelay)
}

func TestValidate(t *testing.T) {
	base := Config{Env: "dev", JWTSecret: "a", JWTRefreshSecret: "b", BcryptCost: 12, MailDriver: "log"}
	require.NoError(t, base.validate())

	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"same secrets", func(c *Config) { c.JWTRefreshSecret = c.JWTSecret }, "must differ"},
		{"low cost", func(c *Config) { c.BcryptCost = 4 }, "BCRYPT_COST"},
		{"unknown driver", func(c *Config) { c.MailDriver = "smtp" }, "unknown MAIL_DRIVER"},
		{"log driver in production", func(c *Config) { c.Env = "production" }, "MAIL_DRIVER=log"},
		{"relay in production", func(c *Config) { c.Env = "prod"; c.MailDriver = "amqp"; c.MailRelay = true }, "MAIL_RELAY_ENABLED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.edit(&c)
			err := c.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	prod := base
	prod.Env = "production"
	prod.MailDriver = "amqp"
	assert.NoError(t, prod.validate())
}

func TestLoadSecurityConfig(t *testing.T) {
	assert.Equal(t, DefaultSecurityConfig(), LoadSecurityConfig())

	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("LOCKOUT_DURATION", "10m")
	t.Setenv("MFA_MAX_ATTEMPTS", "0")
	cfg := LoadSecurityConfig()
	assert.Equal(t, 3, cfg.LockoutThreshold)
	assert.Equal(t, 10*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 5, cfg.MFAMaxAttempts)
}

func TestLoadRateLimits(t *testing.T) {
	t.Setenv("RATE_LIMIT_PREFIX", "ia")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimits()
	require.True(t, rl.Global.Enabled)
	assert.Equal(t, "ia", rl.Global.Prefix)
	assert.Equal(t, 45*time.Second, rl.Global.TTL)

	assert.Equal(t, 5, rl.Auth.Capacity)
	assert.Equal(t, "ia:auth", rl.Auth.Prefix)
	assert.Equal(t, 15*time.Minute, rl.Auth.TTL)
	assert.Equal(t, "ia:user", rl.User.Prefix)
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "later")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, time.Second, envDur("X_DUR", time.Second))
	assert.True(t, envBool("X_BOOL", true))
	assert.Equal(t, "d", envStr("X_UNSET_FOR_TEST", "d"))
}
