// Package config loads process-wide configuration from environment variables
// (with optional .env support) into typed structs. Each configuration type is
// parsed once and cached, so components resolving the same config always see
// identical values.
package config
