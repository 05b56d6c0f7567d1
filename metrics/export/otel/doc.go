// Package otel publishes goToken metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per goToken counter and,
// per latency histogram, a cumulative bucket gauge carrying an "le" attribute
// plus a count gauge. A single callback reads
// [goToken.Manager.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
