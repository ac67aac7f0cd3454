// Package async provides a minimal generic future for running independent
// operations concurrently, used to fan out health probes across storage and
// payment infrastructure.
package async
