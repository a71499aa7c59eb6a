// Package config loads poolguard configuration.
//
// Values are layered, later layers winning:
//   - Default()
//   - a YAML file named by POOLGUARD_CONFIG
//   - environment variables (a .env file is read into the environment first)
//
// Environment variables:
//
//	PORT, HOST, SHUTDOWN_TIMEOUT           HTTP health server
//	GRPC_PORT, GRPC_ENABLED                gRPC health server
//	LOG_LEVEL, LOG_DEV                     logging
//	RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//	DB_ENABLED, DATABASE_URL, DB_MAX_CONNS, DB_MIN_CONNS, DB_CONNECT_TIMEOUT, DB_WAIT_TIMEOUT
//	REDIS_ENABLED, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE
//	MONITOR_INTERVAL, MONITOR_SATURATION_THRESHOLD, MONITOR_WINDOW_SIZE, MONITOR_WINDOW_AGE,
//	MONITOR_HISTORY_SIZE, MONITOR_SLOW_QUERY_THRESHOLD
//	BREAKER_FAILURE_THRESHOLD, BREAKER_RECOVERY_TIMEOUT, BREAKER_FAILURE_WINDOW
//	RETRY_MAX_ATTEMPTS, RETRY_BASE_DELAY, RETRY_MAX_DELAY, RETRY_EXPONENTIAL_BASE, RETRY_JITTER
//	ALERT_WEBHOOK_URL, ALERT_TIMEOUT, ALERT_MAX_RETRIES, ALERT_INTERVAL, ALERT_BURST
package config
