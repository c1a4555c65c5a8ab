package internaldefs

import (
	"github.com/authcore-io/authcore"
)

// CounterDef binds one engine counter to its exported name and help
// text. Both exporters render from this single list so metric names stay
// identical across Prometheus and OTel.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Rejected login attempts."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Refresh tokens issued."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Completed token rotations."},
	{ID: authcore.MetricRefreshRejected, Name: "authcore_refresh_rejected_total", Help: "Rotations rejected with the generic token error."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited rotation attempts."},
	{ID: authcore.MetricIPMismatchFlagged, Name: "authcore_ip_mismatch_flagged_total", Help: "Rotations flagged for an IP change."},
	{ID: authcore.MetricIPMismatchBlocked, Name: "authcore_ip_mismatch_blocked_total", Help: "Rotations blocked by the IP mismatch policy."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Refresh tokens revoked."},
	{ID: authcore.MetricRevokeAll, Name: "authcore_revoke_all_total", Help: "Revoke-all operations."},
	{ID: authcore.MetricResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: authcore.MetricResetRateLimited, Name: "authcore_password_reset_rate_limited_total", Help: "Rate-limited password reset calls."},
	{ID: authcore.MetricSweepRun, Name: "authcore_sweep_run_total", Help: "Cleanup sweeper passes."},
	{ID: authcore.MetricSweepDeleted, Name: "authcore_sweep_deleted_total", Help: "Token records removed by the sweeper."},
	{ID: authcore.MetricSweepFailure, Name: "authcore_sweep_failure_total", Help: "Failed sweeper passes."},
}
