// Package server wires poolguard together.
//
// It opens the configured pools, gives each one a Monitor, a circuit
// Breaker and a retry Controller, and fans their events out to
// Prometheus, the gRPC health service, the alert sink and the logs.
//
// Server Lifecycle:
//  1. Build logger, metrics and the alert sink from configuration
//  2. Open Postgres and Redis pools and wait for Postgres to answer
//  3. Serve the health API over HTTP and gRPC
//  4. Sample every pool until the context is cancelled
//  5. Drain both servers, stop sampling and close the pools
//
// Example Usage:
//
//	srv, err := server.NewServer(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
