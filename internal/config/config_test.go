package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		// t.Setenv sets the environment variable for the duration of the test
		// and automatically restores it afterwards.
		t.Setenv("APP_ENV", "test")
		t.Setenv("API_BASE_URL", "https://api.booth.test")
		t.Setenv("KIOSK_TOKEN", "token")
		t.Setenv("JOURNAL_DSN", "postgres://localhost/kiosk")
		t.Setenv("HTTP_TIMEOUT", "5s")
		t.Setenv("RECONNECT_MAX_ATTEMPTS", "4")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "https://api.booth.test", cfg.APIBaseURL)
		assert.Equal(t, "token", cfg.KioskToken)
		assert.Equal(t, "postgres://localhost/kiosk", cfg.JournalDSN)
		assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
		assert.Equal(t, 4, cfg.Reconnect.MaxAttempts)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "http://localhost:8080")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, 3*time.Second, cfg.NotifyDuration)
		assert.Equal(t, 3*time.Second, cfg.Reconnect.BaseDelay)
		assert.Equal(t, 10*time.Second, cfg.Reconnect.MaxDelay)
		assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
		assert.Equal(t, 5.0, cfg.APIRateLimit)
		assert.Equal(t, 10, cfg.APIRateBurst)
	})

	t.Run("Missing base URL", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "")

		cfg, err := LoadConfig()
		assert.Nil(t, cfg)
		assert.ErrorIs(t, err, ErrMissingAPIBaseURL)
	})

	t.Run("Invalid duration", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "http://localhost:8080")
		t.Setenv("HTTP_TIMEOUT", "soon")

		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
