package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HUB_URL", "https://hub.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://hub.example.com", cfg.Hub.URL)
	assert.Equal(t, 0, cfg.Hub.MaxRetries)
	assert.Equal(t, 0, cfg.Hub.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Hub.Timeout)
	assert.Equal(t, "9010", cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.True(t, cfg.Discovery.OnStart)
	assert.Zero(t, cfg.Discovery.Interval)
	assert.False(t, cfg.ReportingEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HUB_URL", "http://localhost:3000")
	t.Setenv("HUB_MAX_RETRIES", "2")
	t.Setenv("DISCOVERY_INTERVAL", "5m")
	t.Setenv("BROKER_HOST", "broker.local")
	t.Setenv("BROKER_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Hub.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Discovery.Interval)
	assert.True(t, cfg.ReportingEnabled())
	assert.Equal(t, "tcps://broker.local:1883", cfg.GetMQTTBrokerURL())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_MissingHubURL(t *testing.T) {
	t.Setenv("HUB_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HUB_URL is required")
}

func TestValidate_Store(t *testing.T) {
	base := func() *Config {
		return &Config{Hub: HubConfig{URL: "http://hub", BreakerMaxFailures: 1}}
	}

	cfg := base()
	cfg.Store.Type = "redis"
	assert.ErrorContains(t, cfg.Validate(), "unknown RUN_STORE")

	cfg = base()
	cfg.Store.Type = StoreMongo
	assert.ErrorContains(t, cfg.Validate(), "MONGODB_URI")

	cfg = base()
	cfg.Store.Type = StorePostgres
	cfg.Store.Database.User = "sfy"
	assert.ErrorContains(t, cfg.Validate(), "POSTGRES_PASSWORD")

	cfg.Store.Database.Password = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Hub(t *testing.T) {
	assert.NoError(t, HubConfig{URL: "http://hub"}.Validate())
	assert.NoError(t, HubConfig{URL: "http://hub", BreakerMaxFailures: 5}.Validate())
	assert.ErrorContains(t, HubConfig{URL: "http://hub", BreakerMaxFailures: -1}.Validate(), "HUB_BREAKER_MAX_FAILURES")
	assert.ErrorContains(t, HubConfig{URL: "http://hub", MaxRetries: -1}.Validate(), "HUB_MAX_RETRIES")
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Database: DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DBName: "sfy", SSLMode: "disable",
	}}}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=sfy sslmode=disable", cfg.GetDatabaseDSN())
}
