// Package mock provides an in-memory payment gateway with configurable
// failure rate and latency. It is the default provider for tests and local
// development.
package mock
