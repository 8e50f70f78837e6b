// Package journal records migration run outcomes in a SQL table so operators can review
// previous runs. PostgreSQL, SQLite files, and libsql servers are supported; the driver is
// chosen from the DSN. The journal is informational only and never decides which units run.
package journal
