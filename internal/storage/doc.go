// Package storage persists posts and reads the recipient list.
//
// Two drivers share one contract:
//   - "sqlite": a local database file (modernc.org/sqlite, pure Go)
//   - "postgres": a server database through a pgx connection pool
//
// Both enforce "at most one draft per admin" with a partial unique index and
// perform draft supersession inside a single transaction.
package storage
