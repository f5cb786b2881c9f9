// Package prometheus exposes authcore engine metrics as a
// prometheus.Collector.
//
// [NewCollector] accepts an [authcore.Engine] and renders every counter as
// authcore_*_total plus the single histogram authcore_validate_latency_seconds.
// [Handler] wraps the collector in a private registry and serves it over HTTP.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers mount the
//     Handler or register the Collector themselves.
//   - Mutate engine state.
package prometheus
