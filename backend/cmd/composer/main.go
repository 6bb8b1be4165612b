package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"composer/backend/config"
	"composer/backend/internal/cache"
	"composer/backend/internal/collab"
	"composer/backend/internal/httpapi"
	"composer/backend/internal/httpapi/handlers"
	"composer/backend/internal/logger"
	"composer/backend/internal/store"
	"composer/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	lg, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer lg.Sync()

	opts := collab.Options{
		RingCapacity: cfg.Engine.RingCapacity,
		SessionTTL:   cfg.Engine.SessionTTL,
		Logger:       lg,
	}

	var presence cache.PresenceCache
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			lg.Fatal("connect redis", zap.Error(err))
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
		opts.Sessions = cache.NewRedisSessions(rdb)
	}

	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			lg.Fatal("connect mysql", zap.Error(err))
		}
		opts.Snapshots = store.NewSnapshotStore(db)
		opts.Documents = store.NewDocumentStore(db)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// a SyncProducer needs Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			lg.Fatal("connect kafka", zap.Error(err))
		}
		defer producer.Close()

		dispatcher := collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(cfg.Engine.Semaphore),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Dispatcher.QueueSize,
				Workers:     cfg.Dispatcher.Workers,
				MaxRetry:    cfg.Dispatcher.MaxRetry,
				BaseBackoff: cfg.Dispatcher.BaseBackoff,
				MaxBackoff:  cfg.Dispatcher.MaxBackoff,
			},
			lg,
		)
		// runs before producer.Close: flush queued events first
		defer dispatcher.Close()
		opts.Events = dispatcher
	}

	svc := collab.NewInMemoryService(opts)
	hub := ws.NewHub(presence)
	svc.SetNotifier(hub.Notify)
	manager := ws.NewManager(hub, svc, collab.NewSemaphoreControl(cfg.Engine.Semaphore), cfg.Engine.PresenceTTL, lg)

	r := httpapi.NewRouter(
		handlers.NewDocumentHandler(svc, presence, cfg.Engine.PresenceTTL, lg),
		httpapi.RouterOptions{
			Secret:       []byte(cfg.Auth.Secret),
			AllowOrigins: cfg.CORS.AllowOrigins,
			WebSocket:    manager.WebSocketConnect,
		},
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("composer listening", zap.Int("port", cfg.Running.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("shutdown", zap.Error(err))
	}
}
