// Package bolt stores OAuth states and tokens in an embedded bbolt database.
//
// Two buckets are used, "tokens" and "states", each keyed by provider name with
// JSON values in the same shape the file backend writes. bbolt holds an
// exclusive lock on the database file, so only one process can open it.
package bolt
