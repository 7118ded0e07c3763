// Package testutil provides test helpers shared across packages: a controllable
// clock, an in-process fake CRM with per-endpoint call counters, and JSON
// fixtures shaped like real Zoho and Capsule responses.
package testutil
