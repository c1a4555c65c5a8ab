// Package metrics provides lock-free in-process counters for token
// lifecycle events. Exporters under metrics/export render snapshots in
// external formats.
package metrics
