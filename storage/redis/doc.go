// Package redis provides a Redis storage backend. Entities are JSON values
// in per-type hashes, usage records live in one sorted set per user scored
// by timestamp. Suited for high-read deployments that tolerate best-effort
// write atomicity.
package redis
