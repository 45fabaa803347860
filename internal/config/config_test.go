package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WS_PONG_WAIT", "not-a-duration")
	t.Setenv("WS_SEND_BUFFER", "32")

	cfg := Load()

	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Realtime.PongWait)
	assert.Equal(t, 32, cfg.Realtime.SendBufferSize)
	assert.Equal(t, 4000, cfg.Realtime.MaxContentLength)
	assert.False(t, cfg.IsProduction())
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("PROFILE_CACHE_TTL", "30s")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Second, cfg.Realtime.ProfileCacheTTL)
}
