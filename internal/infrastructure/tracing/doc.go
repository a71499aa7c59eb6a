/*
Package tracing provides OpenTelemetry request tracing for the HTTP and
gRPC health surfaces.

Incoming W3C traceparent headers (or gRPC metadata) are extracted, and a
server span is started per request. Guarded database operations open
their own child spans in resilience.Run, so a health probe that pings a
database shows up as one trace.

Usage:

	tracing.Init()
	router.Use(tracing.HTTPMiddleware())
	server := grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor()))
*/
package tracing
