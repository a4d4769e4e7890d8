package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/roomnotify/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "notify-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.True(t, cfg.Notifications.EnableExternalNotifications)
	require.Equal(t, 25, cfg.Notifications.DefaultFetchLimit)
	require.Equal(t, "@alice:example.org", cfg.Notifications.UserID)

	require.Equal(t, 8, cfg.Engine.MaxConcurrentRooms)
	require.Equal(t, "@every 1m", cfg.Engine.ReconcileSchedule)
	require.Equal(t, "@every 10s", cfg.Engine.DeliverySchedule)
	require.Equal(t, 200, cfg.Engine.DeliveryBatchSize)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/roomnotify.sqlite", cfg.Database.Path)
	require.False(t, cfg.Notifications.EnableExternalNotifications)
	require.Equal(t, 50, cfg.Notifications.DefaultFetchLimit)
	require.Equal(t, 4, cfg.Engine.MaxConcurrentRooms)
	require.Equal(t, "@every 30s", cfg.Engine.ReconcileSchedule)
	require.Equal(t, "@every 5s", cfg.Engine.DeliverySchedule)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ROOMNOTIFY_SERVER_PORT", "9999")
	t.Setenv("ROOMNOTIFY_NOTIFICATIONS_ENABLE_EXTERNAL_NOTIFICATIONS", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.True(t, cfg.Notifications.EnableExternalNotifications)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret", Issuer: "issuer"}}

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "secret", jwtCfg.Secret)
	require.Equal(t, "issuer", jwtCfg.Issuer)
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	cfg.JWT.TTL = time.Hour
	require.Equal(t, time.Hour, cfg.JWTServiceConfig().AccessTokenTTL)
}

func TestDatabaseConnConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: " MySQL ",
		Postgres: DBAuthConfig{
			Host: "pg.example.com",
		},
		MySQL: DBAuthConfig{
			Host:     " mysql.example.com ",
			Port:     3307,
			Database: "notify",
			Username: "user",
			Password: "pass",
		},
	}

	conn := cfg.DatabaseConnConfig()
	require.Equal(t, "mysql", conn.Driver)
	require.Equal(t, "mysql.example.com", conn.Host)
	require.Equal(t, 3307, conn.Port)
	require.Equal(t, "notify", conn.Name)
	require.Equal(t, "user", conn.User)
	require.Equal(t, "pass", conn.Password)

	sqlite := DatabaseConfig{Driver: "sqlite", Path: " ./data/x.sqlite "}.DatabaseConnConfig()
	require.Equal(t, "./data/x.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
}
