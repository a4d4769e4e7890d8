package app

import (
	"strings"

	"github.com/charlesng35/roomnotify/internal/auth"
	"github.com/charlesng35/roomnotify/internal/database"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// DatabaseConnConfig converts DatabaseConfig into database.Config, picking the
// host credentials that belong to the selected driver.
func (c DatabaseConfig) DatabaseConnConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var creds *DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		creds = &c.Postgres
	case "mysql", "mariadb":
		creds = &c.MySQL
	}
	if creds != nil {
		cfg.Host = strings.TrimSpace(creds.Host)
		cfg.Port = creds.Port
		cfg.Name = strings.TrimSpace(creds.Database)
		cfg.User = strings.TrimSpace(creds.Username)
		cfg.Password = creds.Password
	}

	return cfg
}
