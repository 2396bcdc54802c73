// Package history persists graph activations and per-frame execution
// records in a local sqlite database, giving operators a replayable
// record of what ran where.
package history
