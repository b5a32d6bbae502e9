package source

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/fyrsmithlabs/rowindex/internal/config"
)

// driverNames maps configured drivers to the database/sql names registered
// by the driver packages.
var driverNames = map[string]string{
	"sqlserver": "sqlserver",
	"postgres":  "postgres",
	"sqlite":    "sqlite",
}

// BuildDSN returns the database/sql driver name and connection string for
// cfg. An explicit DSN is passed through untouched.
func BuildDSN(cfg config.SourceConfig) (driver, dsn string, err error) {
	driver, ok := driverNames[cfg.Driver]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
	if cfg.DSN.IsSet() {
		return driver, cfg.DSN.Value(), nil
	}

	query := url.Values{}
	for k, v := range cfg.Params {
		query.Set(k, v)
	}

	switch cfg.Driver {
	case "sqlserver":
		query.Set("database", cfg.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     userinfo(cfg),
			Host:     hostPort(cfg),
			RawQuery: query.Encode(),
		}
		return driver, u.String(), nil

	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     userinfo(cfg),
			Host:     hostPort(cfg),
			Path:     "/" + cfg.Database,
			RawQuery: query.Encode(),
		}
		return driver, u.String(), nil

	default:
		if len(query) == 0 {
			return driver, cfg.Database, nil
		}
		return driver, "file:" + cfg.Database + "?" + query.Encode(), nil
	}
}

func userinfo(cfg config.SourceConfig) *url.Userinfo {
	switch {
	case cfg.User == "":
		return nil
	case cfg.Password.IsSet():
		return url.UserPassword(cfg.User, cfg.Password.Value())
	default:
		return url.User(cfg.User)
	}
}

func hostPort(cfg config.SourceConfig) string {
	if cfg.Port == 0 {
		return cfg.Host
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}
