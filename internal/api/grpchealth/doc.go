// Package grpchealth exposes pool and breaker health through the standard
// grpc.health.v1 service, so orchestrators and load balancers can probe
// poolguard with stock tooling.
package grpchealth
