// Package server assembles the gRPC server: interceptor chain, OTel
// instrumentation, and the standard health service. The auth surface itself
// (login, logout, refresh) is Go-level: upstream services construct a
// session.Manager and call it directly; this server exists so protected RPCs
// registered on it are gated by the Bearer middleware.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"comicguess-auth-core/backend/internal/server/interceptors"
	"comicguess-auth-core/backend/internal/session"
)

// New returns a gRPC server gated by the session-aware auth interceptor,
// instrumented with OTel, and serving the standard health service.
// publicMethods lists full method names that bypass authentication; the
// health service's methods are always public.
func New(sessions *session.Manager, publicMethods map[string]bool) *grpc.Server {
	public := map[string]bool{
		"/grpc.health.v1.Health/Check": true,
		"/grpc.health.v1.Health/Watch": true,
	}
	for m, ok := range publicMethods {
		public[m] = ok
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(sessions, public),
		),
	)
	healthpb.RegisterHealthServer(s, health.NewServer())
	return s
}
