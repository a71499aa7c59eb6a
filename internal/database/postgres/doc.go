// Package postgres connects pgx connection pools to poolguard.
//
// Tracer turns pgxpool acquire and release callbacks into pool.Monitor
// events and times every query into a pool.QueryMonitor, StatsProvider exposes pgxpool.Stat as pool.PoolStats, and
// Classify maps SQLSTATE codes to resilience error kinds so a Controller
// retries only what is worth retrying.
//
//	tracer := postgres.NewTracer()
//	db, err := postgres.Open(ctx, opts, tracer)
//	if err != nil {
//		return err
//	}
//	monitor := pool.NewMonitor(postgres.NewStatsProvider(db), cfg.MonitorConfig("postgres"))
//	tracer.Attach(monitor)
//	tracer.AttachQueries(pool.NewQueryMonitor(cfg.QueryConfig()))
package postgres
