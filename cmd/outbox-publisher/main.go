package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tunbebong-creator/music-space/internal/adapters/crdb"
	"github.com/tunbebong-creator/music-space/internal/adapters/rabbit"
	"github.com/tunbebong-creator/music-space/internal/config"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "music-space-outbox")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool, cfg.LockTimeout)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn, rabbit.Exchange)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	outbox.NewPublisher(repo, rabbitPub, logger).Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
