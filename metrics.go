package goToken

import (
	"time"

	internalmetrics "github.com/MrEthical07/goToken/internal/metrics"
)

// MetricID identifies one Manager counter or histogram.
type MetricID = internalmetrics.MetricID

// Metric ids exposed through [Manager.MetricsSnapshot].
const (
	MetricLoginIssued          = internalmetrics.MetricLoginIssued
	MetricLoginFailure         = internalmetrics.MetricLoginFailure
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshInvalid       = internalmetrics.MetricRefreshInvalid
	MetricRefreshReuseDetected = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited   = internalmetrics.MetricRefreshRateLimited
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricVerifySuccess        = internalmetrics.MetricVerifySuccess
	MetricVerifyInvalid        = internalmetrics.MetricVerifyInvalid
	MetricVerifyRevoked        = internalmetrics.MetricVerifyRevoked
	MetricVerifyFailure        = internalmetrics.MetricVerifyFailure
	MetricTokenRevoked         = internalmetrics.MetricTokenRevoked
	MetricFamilyRevoked        = internalmetrics.MetricFamilyRevoked
	MetricRevokeFailure        = internalmetrics.MetricRevokeFailure
	MetricLogout               = internalmetrics.MetricLogout
	MetricLogoutAll            = internalmetrics.MetricLogoutAll
	MetricVerifyLatency        = internalmetrics.MetricVerifyLatency
	MetricRefreshLatency       = internalmetrics.MetricRefreshLatency
)

// Metrics is the lock-free metric store used by a Manager.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a standalone metric store.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) observeSince(id MetricID, start time.Time) {
	if m == nil || !m.metrics.LatencyEnabled() {
		return
	}
	m.metrics.Observe(id, time.Since(start))
}
