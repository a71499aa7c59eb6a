/*
Package pool tracks the health of database connection pools.

A Monitor receives connection lifecycle events (checkout, checkin, error,
timeout) from a pool adapter, keeps them in a bounded Window, and on demand
combines them with live pool statistics into a Snapshot carrying
utilization, checkout latency, failure counts and a healthy / degraded /
critical status.

	monitor := pool.NewMonitor(provider, pool.Config{
		Target:              "postgres",
		SaturationThreshold: 0.8,
	}).WithLogger(logger).WithAlertSink(notify)

	if err := monitor.Start(ctx, 15*time.Second); err != nil {
		return err
	}
	defer monitor.Stop()

The monitor keeps its sampled snapshots; Recommend turns that history into
a pool size suggestion. A QueryMonitor times individual queries against a
slow-query threshold.

Monitoring is fail-safe: recording never fails, and faults in the stats
provider or the alert sink are logged and folded into the snapshot status.
*/
package pool
