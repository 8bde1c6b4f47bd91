// Package prometheus publishes engine counters through client_golang.
//
// [Exporter] is a prometheus.Collector that reads Engine.MetricsSnapshot on
// every scrape and emits const metrics, so the engine's lock-free counters
// stay the single source of truth. Register it on your own registry, or use
// [Handler] for a ready /metrics endpoint.
package prometheus
