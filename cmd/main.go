package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/api"
	"github.com/fathima-sithara/roomrent-chat/internal/auth"
	"github.com/fathima-sithara/roomrent-chat/internal/cache"
	"github.com/fathima-sithara/roomrent-chat/internal/config"
	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/fathima-sithara/roomrent-chat/internal/kafka"
	"github.com/fathima-sithara/roomrent-chat/internal/metrics"
	"github.com/fathima-sithara/roomrent-chat/internal/middleware"
	"github.com/fathima-sithara/roomrent-chat/internal/natsbus"
	"github.com/fathima-sithara/roomrent-chat/internal/presence"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
	"github.com/fathima-sithara/roomrent-chat/internal/service"
	"github.com/fathima-sithara/roomrent-chat/internal/utils"
	"github.com/fathima-sithara/roomrent-chat/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App.Dev(), cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var (
		rdb      *redis.Client
		lastSeen *cache.PresenceStore
		limiter  *middleware.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		cancel()
		lastSeen = cache.NewPresenceStore(rdb, cfg.Redis.Prefix)
		limiter = middleware.NewRateLimiter(rdb, cfg.Redis.Prefix+":rl", cfg.RateLimit.PerMinute, time.Minute)
	}

	pub := openPublisher(cfg, logger)
	defer func() { _ = pub.Close() }()

	jv, err := auth.NewJWTValidator(cfg.JWT.PublicKeyPath, cfg.JWT.Alg, cfg.JWT.HSSecret)
	if err != nil {
		logger.Fatal("jwt validator", zap.Error(err))
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(cfg.SendTimeout, logger)
	clock := service.NewClock(nil)
	coordinator := service.NewDeliveryCoordinator(store, registry, hub, pub, clock, cfg.Chat.MaxBodyBytes, logger)
	reader := service.NewReadHandler(store, pub, clock, logger)
	qrySvc := service.NewQueryService(store, cfg.Chat.HistoryLimit)

	deps := ws.Deps{
		Coordinator: coordinator,
		Reader:      reader,
		Registry:    registry,
		Out:         hub,
		Log:         logger,
	}
	if lastSeen != nil {
		deps.LastSeen = lastSeen
	}
	wsrv := ws.NewServer(context.Background(), hub, deps, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendTimeout:    cfg.SendTimeout,
		RatePerSecond:  cfg.WS.RateLimitPerSec,
	}, logger)

	var lastSeenReader api.LastSeenReader
	if lastSeen != nil {
		lastSeenReader = lastSeen
	}
	h := api.NewHandlers(qrySvc, registry, lastSeenReader, logger)
	opts := api.Options{
		Validator:    jv,
		WSHandler:    wsrv.HandleWS,
		Limiter:      limiter,
		AccessLog:    cfg.App.Dev(),
		AllowOrigins: cfg.App.CORSOrigins,
	}
	app := api.NewServer(h, opts)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			logger.Fatal("server listen", zap.Error(err))
		}
	}()
	logger.Info("chat service started",
		zap.String("port", cfg.App.PortString()),
		zap.String("store", cfg.Store.Driver),
		zap.String("events", cfg.Events.Driver))

	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	hub.CloseAll()
	if err := app.ShutdownWithContext(sctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	logger.Info("chat service stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.MessageStore, func()) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory message store; messages are lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.MongoWait, logger)
	if err != nil {
		logger.Fatal("mongo init", zap.Error(err))
	}
	store := repository.NewMongoStore(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.MessagesCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("create indexes", zap.Error(err))
	}
	return store, func() { _ = mc.Disconnect(context.Background()) }
}

func openPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	switch cfg.Events.Driver {
	case "kafka":
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	case "nats":
		p, err := natsbus.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Fatal("nats init", zap.Error(err))
		}
		return p
	}
	return events.Noop{}
}
