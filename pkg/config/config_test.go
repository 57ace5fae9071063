package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []int{30, 45, 60, 90, 120}, cfg.Sessions.AllowedDurations)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdempotencyTTL)
	assert.Equal(t, 2*time.Minute, cfg.Tutors.CacheTTL)
	assert.Equal(t, 10, cfg.Tutors.LeaderboardDefaultLimit)
	assert.True(t, cfg.Tutors.CacheEnabled)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SESSION_DURATIONS", "25, x, 50,-5")
	v.Set("TUTOR_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://app.example.com/, ,https://admin.example.com")
	v.Set("LEADERBOARD_DEFAULT_LIMIT", 0)
	v.Set("DB_DRIVER", "pgx")

	cfg := fromViper(v)

	assert.Equal(t, []int{25, 50}, cfg.Sessions.AllowedDurations)
	assert.Equal(t, 2*time.Minute, cfg.Tutors.CacheTTL)
	assert.Equal(t, []string{"https://app.example.com/", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10, cfg.Tutors.LeaderboardDefaultLimit)
	assert.Equal(t, "pgx", cfg.Database.Driver)
}
