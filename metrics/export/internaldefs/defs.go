package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for Engine.AuditDropped.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected or failed refresh attempts."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Refresh token reuses that revoked a session."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Sessions revoked by logout."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Access tokens added to the blacklist."},
	{ID: authcore.MetricAuthorizeSuccess, Name: "authcore_authorize_success_total", Help: "Guard checks that admitted the caller."},
	{ID: authcore.MetricAuthorizeUnauthenticated, Name: "authcore_authorize_unauthenticated_total", Help: "Guard checks rejected with 401."},
	{ID: authcore.MetricAuthorizeForbidden, Name: "authcore_authorize_forbidden_total", Help: "Guard checks rejected with 403."},
	{ID: authcore.MetricStorageError, Name: "authcore_storage_error_total", Help: "Operations failed by an unavailable backend."},
	{ID: authcore.MetricSweepSessions, Name: "authcore_sweep_sessions_total", Help: "Dead sessions deleted by the sweeper."},
	{ID: authcore.MetricSweepBlacklist, Name: "authcore_sweep_blacklist_total", Help: "Expired blacklist entries deleted by the sweeper."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricGuardLatency, Name: "authcore_guard_latency_seconds", Help: "RequireSubject latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last engine
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters without
// native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
