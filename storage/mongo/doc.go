// Package mongo provides a MongoDB storage backend. Each entity is stored
// as a JSON payload next to the denormalized fields used for filtering and
// sorting, keeping full precision on amounts and timestamps.
package mongo
