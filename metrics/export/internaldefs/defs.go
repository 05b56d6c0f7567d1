package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goToken.MetricLoginIssued, Name: "gotoken_login_issued_total", Help: "Token families started by a login."},
	{ID: goToken.MetricLoginFailure, Name: "gotoken_login_failure_total", Help: "Logins that could not be issued."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: goToken.MetricRefreshInvalid, Name: "gotoken_refresh_invalid_total", Help: "Refresh attempts with an invalid or expired token."},
	{ID: goToken.MetricRefreshReuseDetected, Name: "gotoken_refresh_reuse_detected_total", Help: "Refresh token reuse detections."},
	{ID: goToken.MetricRefreshRateLimited, Name: "gotoken_refresh_rate_limited_total", Help: "Refresh attempts rejected by the family throttle."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Refresh attempts that failed on infrastructure."},
	{ID: goToken.MetricVerifySuccess, Name: "gotoken_verify_success_total", Help: "Access tokens accepted."},
	{ID: goToken.MetricVerifyInvalid, Name: "gotoken_verify_invalid_total", Help: "Access tokens rejected as invalid."},
	{ID: goToken.MetricVerifyRevoked, Name: "gotoken_verify_revoked_total", Help: "Access tokens rejected by the denylist."},
	{ID: goToken.MetricVerifyFailure, Name: "gotoken_verify_failure_total", Help: "Access verifications that failed on infrastructure."},
	{ID: goToken.MetricTokenRevoked, Name: "gotoken_token_revoked_total", Help: "Single refresh tokens revoked."},
	{ID: goToken.MetricFamilyRevoked, Name: "gotoken_family_revoked_total", Help: "Token families revoked."},
	{ID: goToken.MetricRevokeFailure, Name: "gotoken_revoke_failure_total", Help: "Revocations that failed on infrastructure."},
	{ID: goToken.MetricLogout, Name: "gotoken_logout_total", Help: "Single-session logouts."},
	{ID: goToken.MetricLogoutAll, Name: "gotoken_logout_all_total", Help: "Sign-out-everywhere operations."},
}

var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricVerifyLatency, Name: "gotoken_verify_latency_seconds", Help: "VerifyAccess latency."},
	{ID: goToken.MetricRefreshLatency, Name: "gotoken_refresh_latency_seconds", Help: "Refresh latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = 8

// UpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var UpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BoundLabels are the "le" label values for every bucket.
var BoundLabels = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into "less or equal" counts.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates the sample sum from per-bucket counts, charging every
// sample its bucket's upper bound and overflow samples twice the last bound.
// Only bucket counts are recorded, so the true sum is not available.
func ApproxSum(raw [BucketCount]uint64) float64 {
	var sum float64
	for i := 0; i < len(UpperBounds); i++ {
		sum += float64(raw[i]) * UpperBounds[i]
	}
	sum += float64(raw[BucketCount-1]) * 2 * UpperBounds[len(UpperBounds)-1]
	return sum
}
