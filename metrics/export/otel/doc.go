// Package otel publishes engine counters as OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine
// counter; a single callback reads the engine's metrics snapshot on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
