package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadConfig()

		assert.Equal(t, 10, cfg.RateLimit)
		assert.Equal(t, time.Hour, cfg.RateWindow)
		assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("RATE_LIMIT", "3")
		t.Setenv("HTTP_TIMEOUT", "5s")
		t.Setenv("DB_DRIVER", "postgres")

		cfg := LoadConfig()

		assert.Equal(t, 3, cfg.RateLimit)
		assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
		assert.Equal(t, "postgres", cfg.DBDriver)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		t.Setenv("MAIL_PORT", "smtp")
		t.Setenv("RATE_WINDOW", "an hour")

		cfg := LoadConfig()

		assert.Equal(t, 25, cfg.MailPort)
		assert.Equal(t, time.Hour, cfg.RateWindow)
	})
}
