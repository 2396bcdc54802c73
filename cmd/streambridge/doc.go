// Command streambridge runs the media streaming bridge: it connects a
// set of remote inference backends, exposes Prometheus metrics, and
// keeps the fan-out orchestrator alive until shutdown.
//
// Usage:
//
//	streambridge serve                        start the bridge
//	streambridge serve --config config.yaml   with a config file
//	streambridge version                      print version info
package main
