// Package postgres provides the PostgreSQL storage backend over pgx/v5.
// It is the only backend with real transaction support: the engine wraps
// read-modify-write sequences in WithinTx and gets atomic commit or
// rollback instead of best-effort writes.
package postgres
