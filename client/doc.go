// Package client owns the connection to exactly one inference backend
// and serializes submissions to it.
//
// Two transports share the same contract: an in-process backend invoked
// directly, and a remote backend reached through an HTTP submit endpoint
// plus a persistent websocket that delivers status messages and binary
// result frames. Within one client, submissions are strictly sequential;
// a new cycle never starts before the previous one's result resolves.
// Protocol and connection failures are absorbed inside the client and
// converted into forward progress (a substitute zero tensor and a forced
// completion), never a hang.
package client
