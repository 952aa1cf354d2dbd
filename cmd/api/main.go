package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/tunbebong-creator/music-space/internal/adapters/crdb"
	"github.com/tunbebong-creator/music-space/internal/adapters/mail"
	mongoadapter "github.com/tunbebong-creator/music-space/internal/adapters/mongo"
	"github.com/tunbebong-creator/music-space/internal/adapters/rabbit"
	redisadapter "github.com/tunbebong-creator/music-space/internal/adapters/redis"
	"github.com/tunbebong-creator/music-space/internal/config"
	httphandler "github.com/tunbebong-creator/music-space/internal/http"
	"github.com/tunbebong-creator/music-space/internal/idempotency"
	"github.com/tunbebong-creator/music-space/internal/notify"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
	"github.com/tunbebong-creator/music-space/internal/rateLimit"
	"github.com/tunbebong-creator/music-space/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "music-space-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool, cfg.LockTimeout)
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	svcOpts := []reservation.Option{reservation.WithTxTimeout(cfg.TxTimeout)}
	var notifyOpts []notify.Option
	var handlerOpts []httphandler.HandlerOption
	var rl *rateLimit.RateLimiter

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		auditor := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)
		svcOpts = append(svcOpts, reservation.WithAuditor(auditor))
		notifyOpts = append(notifyOpts, notify.WithAuditor(auditor))
	}

	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		cache := redisadapter.NewCache(redisClient, cfg.CacheTTL)
		svcOpts = append(svcOpts, reservation.WithCache(cache))
		notifyOpts = append(notifyOpts, notify.WithCache(cache))
		idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		handlerOpts = append(handlerOpts, httphandler.WithIdempotency(idemp), httphandler.WithReadyCheck("redis", cache))
		rl = rateLimit.NewRateLimiter(redisadapter.NewWindow(redisClient), logger)
	}

	var transport ports.TicketTransport
	switch cfg.TicketTransport {
	case config.TransportSMTP:
		transport = mail.NewSMTPTransport(cfg.SMTP)
	case config.TransportRabbit:
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		pub, err := rabbit.NewPublisher(conn, rabbit.Exchange)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		tickets, err := rabbit.NewTicketPublisher(pub)
		if err != nil {
			log.Fatalf("failed to declare ticket queue: %v", err)
		}
		transport = tickets
	default:
		transport = notify.NewLogTransport(logger)
	}

	dispatcher := notify.NewDispatcher(repo, transport, logger, cfg.NotifyTimeout, notifyOpts...)
	svc := reservation.NewService(repo, dispatcher, logger, svcOpts...)

	handlerOpts = append(handlerOpts, httphandler.WithRedirectPath(cfg.RedirectPath))
	handlers := httphandler.NewHandlers(svc, dispatcher, repo, logger, handlerOpts...)
	r := httphandler.SetupRouter(handlers, logger, rl, cfg.RateLimitPerMinute)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).WithField("transport", cfg.TicketTransport).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server shutdown")
		}

		waitCtx, cancelWait := context.WithTimeout(context.Background(), cfg.NotifyTimeout)
		defer cancelWait()
		if err := dispatcher.Wait(waitCtx); err != nil {
			logger.WithError(err).Warn("ticket deliveries still in flight at exit")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("api stopped")
	}
	logger.Info("Server exiting")
}
