// Package otel publishes engine counters as OpenTelemetry observable
// instruments. One callback reads Engine.MetricsSnapshot per collection;
// the caller owns the MeterProvider.
package otel
