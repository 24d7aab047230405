package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ariefcatur/go-marketplace-core/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/notify"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("load config", zap.Error(err))
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	log := logger.L().With(zap.String("service", cfg.ServiceName+"-notifier"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.DB)
	defer rdb.Close()

	svc := &notify.Service{
		Dedup:       redisx.Client{RDB: rdb},
		Sender:      notify.LogSender{Log: log.Named("sender")},
		Log:         log,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	topics := notify.Topics()
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Notifier.Group, topics, cfg.Notifier.Workers, log.Named("kafka"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("refund notifier started",
			zap.String("group", cfg.Notifier.Group),
			zap.String("topics", strings.Join(topics, ",")),
			zap.Int("workers", cfg.Notifier.Workers))
		if err := cons.Start(ctx, svc.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
