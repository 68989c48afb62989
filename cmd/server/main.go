package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comicguess-auth-core/backend/internal/config"
	"comicguess-auth-core/backend/internal/revocation"
	"comicguess-auth-core/backend/internal/security"
	"comicguess-auth-core/backend/internal/server"
	"comicguess-auth-core/backend/internal/session"
	"comicguess-auth-core/backend/internal/telemetry"
	telemetryotel "comicguess-auth-core/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("public key: %v", err)
	}

	var revoked revocation.Store
	if cfg.RedisURL != "" {
		redisStore, err := revocation.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis revocation store: %v", err)
		}
		defer redisStore.Close()
		revoked = redisStore
		log.Printf("revocation: using shared redis backend")
	} else {
		revoked = revocation.NewMemoryStore()
		log.Printf("revocation: using in-process backend (single instance only)")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "comicguess-auth-core", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("telemetry metrics: %v", err)
	}
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	tokens := security.NewTokenProvider(privateKey, publicKey, revoked, security.Options{
		Issuer:            cfg.JWTIssuer,
		Audience:          cfg.JWTAudience,
		AccessTTL:         cfg.AccessTTL(),
		RefreshTTL:        cfg.RefreshTTL(),
		ClockSkew:         cfg.ClockSkew(),
		RotationThreshold: cfg.RotationThreshold(),
		MaxTokenAge:       cfg.MaxTokenAge(),
		FailClosed:        cfg.RevocationFailClosed,
	})

	// The user directory is supplied by the embedding service; standalone,
	// sessions carry the bare user id.
	sessions := session.NewManager(tokens, nil, emitter, metrics, session.Config{
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		MaxIdle:            cfg.IdleTimeout(),
		AbsoluteMax:        cfg.AbsoluteTimeout(),
		HighRiskThreshold:  cfg.HighRiskThreshold,
		LockoutThreshold:   cfg.LockoutThreshold,
		LockoutWindow:      cfg.LockoutWindowDuration(),
		CleanupInterval:    cfg.CleanupInterval(),
		VerifyTimeout:      cfg.VerifyTimeoutDuration(),
	})
	go sessions.RunCleanup(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.New(sessions, nil)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	s.GracefulStop()
	stop()
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("gRPC server stopped")
}
