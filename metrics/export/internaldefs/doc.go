// Package internaldefs holds the metric name definitions shared by the
// exporter implementations, so Prometheus and OTel emit identical names.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
