// Package prometheus renders engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an Engine and exposes an http.Handler
// that renders every counter, prefixed authcore_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount
//     the Handler.
//   - Mutate engine state.
package prometheus
