package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("FEED_DRAFT_TTL_SECONDS", "")
	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.DraftTTL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, 15*time.Second, cfg.DBConnectWait)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("FEED_DRAFT_TTL_SECONDS", "60")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("FEED_DRAFT_SESSION_TTL", "5m")
	t.Setenv("LOG_JSON", "not-a-bool")
	t.Setenv("FEED_DB_MAX_CONNS", "5")
	t.Setenv("FEED_DB_CONNECT_WAIT", "-1s")
	cfg := Load()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.DraftTTL)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, 5, cfg.DBMaxConns)
	assert.Equal(t, 15*time.Second, cfg.DBConnectWait)
}
