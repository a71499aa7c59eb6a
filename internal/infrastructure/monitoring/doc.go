/*
Package monitoring exports pool, breaker and retry metrics to Prometheus.

# Overview

Metrics owns a private prometheus.Registry. It implements
resilience.Observer, so a Controller reports attempts, backoffs,
rejections and outcomes to it directly, and it publishes every sampled
pool.Snapshot as a set of per-target gauges.

# Usage

	metrics := monitoring.NewMetrics()

	settings := cfg.BreakerSettings()
	settings.OnStateChange = metrics.ObserveStateChange
	breaker := resilience.New("postgres", settings)

	controller := resilience.NewController(policy, breaker).WithObserver(metrics)
	monitor := pool.NewMonitor(provider, cfg.MonitorConfig("postgres")).
		WithSampleHook(metrics.ObserveSnapshot)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
