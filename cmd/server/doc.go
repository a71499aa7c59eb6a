// Package main is the entry point for poolguard.
//
// poolguard watches database connection pools, guards calls to them with
// retry and a circuit breaker, and reports their health.
//
//	Postgres (pgxpool) ┐
//	                   ├→ Monitor → Prometheus / gRPC health / webhook
//	Redis (go-redis)   ┘     ↑
//	                      Breaker + Retry
//
// The server provides:
//   - HTTP health API under /health and /health/db
//   - Prometheus metrics at /metrics
//   - grpc.health.v1 with one service per pool
//
// Configuration:
//   - Environment variables and an optional .env file
//   - YAML file via -config or POOLGUARD_CONFIG
//   - CLI flags (override both)
//
// Usage:
//
//	./server -config poolguard.yaml
//	DATABASE_URL=postgres://app@db/app REDIS_ENABLED=true ./server -port 9000
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
