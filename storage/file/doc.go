// Package file provides a JSON-file storage backend. The whole dataset is a
// single indented JSON document rewritten atomically on every mutation,
// which suits small single-process deployments and local development.
package file
