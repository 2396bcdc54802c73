// Package telemetry wires the OpenTelemetry SDK: OTLP gRPC exporters
// for traces and metrics, registered as global providers. Disabled
// telemetry keeps the globals noop.
package telemetry
