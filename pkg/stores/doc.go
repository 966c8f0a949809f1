// Package stores provides the persistence layer behind stateful resources.
// It includes a SQLite-backed auth database with WAL mode, embedded
// migrations, bcrypt password hashing, and an append-only audit trail of
// login changes.
package stores
