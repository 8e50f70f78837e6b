// Package dbcheck verifies that the target PostgreSQL database accepts connections before a
// migration run starts.
package dbcheck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	postgresURLPrefixConstant        = "postgres://"
	postgresqlURLPrefixConstant      = "postgresql://"
	sslModeKeyConstant               = "sslmode="
	relaxedSSLModeAssignmentConstant = "sslmode=require"
	keyValueSeparatorConstant        = " "
	defaultPingTimeoutConstant       = 10 * time.Second
	parseErrorTemplateConstant       = "unable to parse database URL: %w"
	connectorErrorTemplateConstant   = "unable to configure database connection: %w"
	pingErrorTemplateConstant        = "database is not reachable: %w"
)

// PrepareDSN converts URL-style DSNs to lib/pq key/value form. When relaxTLS is set and the
// DSN does not choose an sslmode, sslmode=require is added so the connection is encrypted
// without certificate verification.
func PrepareDSN(dataSourceName string, relaxTLS bool) (string, error) {
	prepared := strings.TrimSpace(dataSourceName)
	lowered := strings.ToLower(prepared)
	if strings.HasPrefix(lowered, postgresURLPrefixConstant) || strings.HasPrefix(lowered, postgresqlURLPrefixConstant) {
		converted, parseError := pq.ParseURL(prepared)
		if parseError != nil {
			return "", fmt.Errorf(parseErrorTemplateConstant, parseError)
		}
		prepared = converted
	}

	if !relaxTLS || strings.Contains(prepared, sslModeKeyConstant) {
		return prepared, nil
	}
	if len(prepared) == 0 {
		return relaxedSSLModeAssignmentConstant, nil
	}
	return prepared + keyValueSeparatorConstant + relaxedSSLModeAssignmentConstant, nil
}

// Ping opens a single connection to the database and closes it again. A context without a
// deadline is bounded by a ten second timeout.
func Ping(executionContext context.Context, dataSourceName string, relaxTLS bool) error {
	prepared, prepareError := PrepareDSN(dataSourceName, relaxTLS)
	if prepareError != nil {
		return prepareError
	}

	connector, connectorError := pq.NewConnector(prepared)
	if connectorError != nil {
		return fmt.Errorf(connectorErrorTemplateConstant, connectorError)
	}

	database := sql.OpenDB(connector)
	defer database.Close()

	pingContext := executionContext
	if _, hasDeadline := executionContext.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		pingContext, cancel = context.WithTimeout(executionContext, defaultPingTimeoutConstant)
		defer cancel()
	}

	if pingError := database.PingContext(pingContext); pingError != nil {
		return fmt.Errorf(pingErrorTemplateConstant, pingError)
	}
	return nil
}
