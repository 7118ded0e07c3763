// Package memory provides an in-memory implementation of storage.Store.
// It is suitable for development, tests and single-process deployments that do
// not need tokens to survive a restart.
package memory
