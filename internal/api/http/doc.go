// Package http serves health views over the monitored pools:
//
//	GET /health                  overall status, 503 when critical
//	GET /health/db               per-target status and breaker state
//	GET /health/db/metrics       full pool snapshots
//	GET /health/db/saturation    utilization against the threshold, pool size recommendation
//	GET /health/db/queries       query statistics and slow queries
//	DELETE /health/db/queries    reset query statistics
//	GET /health/db/breaker       circuit breaker diagnostics
//	GET /health/db/ping          ping through the retry controller
//
// Every /health/db route accepts ?target=<name>.
package http
