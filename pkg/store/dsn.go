package store

import (
	"fmt"
	"net/url"
	"strings"
)

// DSNWithPassword sets password on a Postgres DSN in either URL or
// key=value form. An empty password leaves the DSN untouched.
func DSNWithPassword(dsn, password string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if password == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse store url: %w", err)
		}
		user := "postgres"
		if u.User != nil && u.User.Username() != "" {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
	return dsn + " password='" + escaped + "'", nil
}
