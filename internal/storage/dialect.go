package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the few SQL differences between the supported databases.
// Queries are written with `?` placeholders and rebound per dialect.
type dialect struct {
	name          string
	sqlDriver     string
	autoIncrement string
	numeric       string
	weight        string
	numbered      bool
}

var (
	sqliteDialect = dialect{
		name:          DriverSQLite,
		sqlDriver:     "sqlite3",
		autoIncrement: "INTEGER PRIMARY KEY AUTOINCREMENT",
		numeric:       "REAL",
		weight:        "REAL",
	}
	postgresDialect = dialect{
		name:          DriverPostgres,
		sqlDriver:     "pgx",
		autoIncrement: "BIGSERIAL PRIMARY KEY",
		numeric:       "NUMERIC(15, 2)",
		weight:        "NUMERIC(5, 2)",
		numbered:      true,
	}
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite":
		return sqliteDialect, nil
	case DriverPostgres, "postgresql", "pgx":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

// rebind rewrites `?` placeholders into `$n` for databases that need it.
// Placeholders inside quoted literals are left alone.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// placeholders returns "?, ?, ?" with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
