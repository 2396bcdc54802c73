// Package testutil provides shared helpers for streambridge tests:
// auto-cancelled contexts, polling assertions, frame factories, and a
// scriptable in-process executor.
package testutil
