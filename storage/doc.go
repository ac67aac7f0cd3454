// Package storage defines the persistence contract for the billing engine
// and shared error and capability types. Concrete backends live in the
// subpackages: memory, file, postgres, redis, and mongo.
//
// The engine picks its write path from Capabilities: backends reporting
// Transactions get read-modify-write sequences wrapped in WithinTx, the rest
// degrade to best-effort single writes.
package storage
