package journal

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	postgresDriverNameConstant     = "postgres"
	sqliteDriverNameConstant       = "sqlite"
	libsqlDriverNameConstant       = "libsql"
	postgresSchemePrefixConstant   = "postgres://"
	postgresqlSchemePrefixConstant = "postgresql://"
	libsqlSchemePrefixConstant     = "libsql://"
	httpSchemePrefixConstant       = "http://"
	httpsSchemePrefixConstant      = "https://"
	sqliteSchemePrefixConstant     = "sqlite://"
	postgresPlaceholderTemplate    = "$%d"
	positionalPlaceholderConstant  = "?"
)

// Connection describes how to open a journal database.
type Connection struct {
	DriverName       string
	ConnectionString string
}

// ResolveConnection selects the database/sql driver for dataSourceName. PostgreSQL URLs use
// lib/pq, libsql and HTTP URLs use libsql, and anything else is treated as a SQLite file.
func ResolveConnection(dataSourceName string) Connection {
	trimmed := strings.TrimSpace(dataSourceName)
	lowered := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lowered, postgresSchemePrefixConstant), strings.HasPrefix(lowered, postgresqlSchemePrefixConstant):
		return Connection{DriverName: postgresDriverNameConstant, ConnectionString: trimmed}
	case strings.HasPrefix(lowered, libsqlSchemePrefixConstant),
		strings.HasPrefix(lowered, httpSchemePrefixConstant),
		strings.HasPrefix(lowered, httpsSchemePrefixConstant):
		return Connection{DriverName: libsqlDriverNameConstant, ConnectionString: trimmed}
	case strings.HasPrefix(lowered, sqliteSchemePrefixConstant):
		return Connection{DriverName: sqliteDriverNameConstant, ConnectionString: trimmed[len(sqliteSchemePrefixConstant):]}
	default:
		return Connection{DriverName: sqliteDriverNameConstant, ConnectionString: trimmed}
	}
}

// placeholder renders the bind parameter for the one-based position.
func (connection Connection) placeholder(position int) string {
	if connection.DriverName == postgresDriverNameConstant {
		return fmt.Sprintf(postgresPlaceholderTemplate, position)
	}
	return positionalPlaceholderConstant
}
