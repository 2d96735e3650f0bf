// Command market-service serves the campus marketplace HTTP API.
//
//	@title       Campus Market API
//	@version     1.0
//	@description Listings, carts, multi-seller checkout, orders, chats and notifications.
//	@BasePath    /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/config"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/logging"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/telemetry"
	"github.com/MikeMC777/campus-market/internal/user"
)

const (
	cartTTL      = 30 * 24 * time.Hour
	userCacheTTL = 5 * time.Minute
)

func main() {
	cfg := config.Load()
	log := logging.Setup("market-service", cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Service:  "market-service",
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

	d := deps{
		store:       store,
		carts:       cart.NewMemoryStorage(),
		surcharge:   cfg.DeliverySurcharge,
		adminIDs:    cfg.AdminUserIDs,
		chatTimeout: cfg.ChatListTimeout,
		log:         log,
	}

	var identity *user.IdentityClient
	if cfg.UserSvcAddr != "" {
		identity, err = user.DialIdentity(cfg.UserSvcAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.UserSvcAddr).Msg("user-service unreachable")
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		d.carts = cart.NewRedisStorage(rdb, cartTTL)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, carts are kept in memory")
	}
	d.lookup = func(repo user.Lookup) user.Lookup {
		next := repo
		if identity != nil {
			next = identity
		}
		if rdb != nil {
			return user.NewCachedLookup(next, rdb, userCacheTTL, logging.Component(log, "user-cache"))
		}
		return next
	}

	if len(cfg.KafkaBrokers) > 0 {
		d.publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logging.Component(log, "kafka"))
	} else {
		d.publisher = notify.NewLogPublisher(logging.Component(log, "events"))
	}
	if cfg.MailEnabled() {
		d.receipts = notify.NewMailer(cfg.MailSenderName, cfg.MailAddress, cfg.MailPassword)
	}

	a := newApp(d)
	srv := &http.Server{
		Addr:              cfg.MarketSvcAddr,
		Handler:           otelhttp.NewHandler(newRouter(a), "market-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.MarketSvcAddr).Msg("market-service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := d.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("publisher close")
	}
	if identity != nil {
		_ = identity.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("store close")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown")
	}
}
