// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output with lowercase levels and millisecond durations
//   - Development: colored console output
//
// Components receive a plain *zap.Logger obtained from Component or
// Target, so a breaker or monitor never depends on this package.
//
// Example Usage:
//
//	logger := logging.NewWithLevel(cfg.Logging.Level, cfg.Logging.Development)
//	defer logger.Sync()
//
//	breakerLog := logger.Target("breaker", "postgres")
//	breakerLog.Warn("Circuit opened", zap.Int("failures", 5))
package logging
