// Package prometheus exposes goToken metrics through client_golang.
//
// [NewCollector] wraps a [goToken.Manager] in a prometheus.Collector that
// reads [goToken.Manager.MetricsSnapshot] on each scrape. Counters are named
// gotoken_*_total; latency histograms are gotoken_verify_latency_seconds and
// gotoken_refresh_latency_seconds. Register the collector with your own
// registry, or mount [Handler] for a standalone endpoint.
package prometheus
