/*
Package alerting delivers unhealthy pool snapshots.

A pool.Monitor hands every non-healthy snapshot to its AlertSink. This
package provides sinks:

  - Webhook posts an Alert as JSON (encoded with sonic) and retries
    transient failures with go-retryablehttp
  - Throttle rate-limits alerts per target so a pool that stays
    saturated does not flood the receiver; failed deliveries do not
    spend the budget
  - Fanout combines several deliverers

Usage:

	hook := alerting.NewWebhook(alerting.WebhookConfig{URL: url}, logger)
	throttle := alerting.NewThrottle(hook.Send, time.Minute, 3, logger)
	monitor.WithAlertSink(throttle.Sink())
*/
package alerting
