package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, []string{"ADMIN"}, cfg.Moderation.NotifyRoles)
	assert.Equal(t, 2*time.Second, cfg.Moderation.OutboxRetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Identity.CacheTTL)
	assert.False(t, cfg.Mail.Enabled)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 15*time.Second, cfg.Database.StatementTimeout)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("MODERATION_NOTIFY_ROLES", "staff, admin")
	v.Set("OUTBOX_RETRY_DELAY", "bogus")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("DB_STATEMENT_TIMEOUT", "500ms")

	cfg := fromViper(v)
	assert.Equal(t, []string{"STAFF", "ADMIN"}, cfg.Moderation.NotifyRoles)
	assert.Equal(t, 2*time.Second, cfg.Moderation.OutboxRetryDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.StatementTimeout)
}
