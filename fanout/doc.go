// Package fanout composes N backend clients behind the same contract a
// single-backend pipeline offers. Video frames are assigned a
// monotonically increasing frame id, round-robined across backends, and
// rejoined with their results by id; a rate limiter throttles ingestion
// independent of backend speed. Audio is never fanned out: synchronized
// reassembly across independently stateful backends is not attempted,
// so only backend index 0 receives audio.
package fanout
