// Package redis connects go-redis clients to poolguard: a Hook turning
// commands and dials into pool.Monitor events, a StatsProvider over
// PoolStats, and Classify for go-redis errors.
package redis
