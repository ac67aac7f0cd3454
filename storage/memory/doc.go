// Package memory provides an in-memory storage backend guarded by a single
// RWMutex. It is the default backend for tests and for embedding the engine
// in a single process without external infrastructure.
package memory
