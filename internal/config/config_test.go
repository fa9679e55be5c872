package config_test

import (
	"testing"
	"time"

	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Service.Port)
	assert.Equal(t, "https://api.acmi.net.au", cfg.Service.PublicBase)
	assert.Equal(t, 3, cfg.Upstream.Retries)
	assert.Equal(t, 10, cfg.Upstream.PageSize)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "acmi-public-api", cfg.Storage.Bucket)
	assert.Equal(t, "Australia/Melbourne", cfg.Sync.Timezone)
	assert.False(t, cfg.Storage.IncludeImages)
	assert.False(t, cfg.Storage.IncludeVideos)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("XOS_API_ENDPOINT", "https://xos.example.org/api")
	t.Setenv("XOS_RETRIES", "5")
	t.Setenv("ALL_WORKS", "true")
	t.Setenv("UPDATE_FROM_DATE", "2024-03-01")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://xos.example.org/api", cfg.Upstream.Endpoint)
	assert.Equal(t, 5, cfg.Upstream.Retries)
	assert.True(t, cfg.Sync.AllWorks)
	assert.Equal(t, "2024-03-01", cfg.UpdateFrom())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad port", mutate: func(c *config.Config) { c.Service.Port = 0 }},
		{name: "no public base", mutate: func(c *config.Config) { c.Service.PublicBase = "" }},
		{name: "zero retries", mutate: func(c *config.Config) { c.Upstream.Retries = 0 }},
		{name: "zero page size", mutate: func(c *config.Config) { c.Upstream.PageSize = 0 }},
		{name: "no bucket", mutate: func(c *config.Config) { c.Storage.Bucket = "" }},
		{name: "bad timezone", mutate: func(c *config.Config) { c.Sync.Timezone = "Mars/Olympus" }},
		{name: "bad cutoff date", mutate: func(c *config.Config) { c.Sync.UpdateFromDate = "01/03/2024" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUpdateFrom_DefaultsToYesterday(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)
	want := time.Now().In(loc).AddDate(0, 0, -1).Format("2006-01-02")

	assert.Equal(t, want, cfg.UpdateFrom())
}
