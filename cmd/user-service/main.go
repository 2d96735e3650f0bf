// Command user-service serves user profiles and roles over gRPC so other
// services can resolve the signed-in user without touching the store.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MikeMC777/campus-market/internal/config"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
	"github.com/MikeMC777/campus-market/internal/logging"
	"github.com/MikeMC777/campus-market/internal/telemetry"
	"github.com/MikeMC777/campus-market/internal/user"
)

func main() {
	cfg := config.Load()
	log := logging.Setup("user-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Service:  "user-service",
		Exporter: cfg.OtelExporter,
		Endpoint: cfg.OtelEndpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry setup failed")
	}

	store, err := docstore.Open(ctx, cfg.StoreOptions(), logging.Component(log, "docstore"))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store unavailable")
	}
	reader := listing.NewReader(store, logging.Component(log, "listing"))
	svc := user.NewService(user.NewDocRepo(reader), cfg.AdminUserIDs, logging.Component(log, "user"))

	lis, err := net.Listen("tcp", cfg.UserSvcListen)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.UserSvcListen).Msg("listen failed")
	}
	srv := grpc.NewServer()
	user.RegisterIdentityServer(srv, user.NewIdentity(svc))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		log.Info().Str("addr", cfg.UserSvcListen).Msg("user-service listening")
		if err := srv.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("grpc server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	hs.Shutdown()
	srv.GracefulStop()

	if err := store.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("store close")
	}
	if err := shutdownTracing(context.Background()); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown")
	}
}
