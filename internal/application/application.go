package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-bridge/internal/backfill"
	"github.com/psds-microservice/ticket-bridge/internal/cache"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/database"
	"github.com/psds-microservice/ticket-bridge/internal/handler"
	"github.com/psds-microservice/ticket-bridge/internal/ingress"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/outbox"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/psds-microservice/ticket-bridge/internal/region"
	"github.com/psds-microservice/ticket-bridge/internal/router"
	"github.com/psds-microservice/ticket-bridge/internal/service"
	"gorm.io/gorm"
)

// API приложение моста: HTTP-сервер, шлюз Discord, outbox и периодический backfill (режим api).
type API struct {
	cfg        *config.Config
	db         *gorm.DB
	platform   *Platform
	adapter    *ingress.Adapter
	scanner    *outbox.Scanner
	backfiller *backfill.Backfiller
	producer   *kafka.Producer
	channels   *cache.ChannelCache
	httpSrv    *http.Server
}

func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.ValidateBridge(); err != nil {
		return nil, err
	}
	ctx := context.Background()
	db, err := database.MigrateUp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store := service.NewStore(db)

	classifier, err := region.FromConfig(cfg.Region.Strategy, cfg.Region.RulesFile)
	if err != nil {
		return nil, err
	}
	p, err := NewPlatform(cfg)
	if err != nil {
		return nil, err
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	channels := cache.NewChannelCache(nil, cfg.ChannelCacheTTL)
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("cache: %v; continuing without the channel cache", err)
		} else {
			channels = cache.NewChannelCache(rdb, cfg.ChannelCacheTTL)
		}
	}

	adapter := ingress.NewAdapter(store, p.Client, cfg.Discord.CategoryID, classifier, cfg.Discord.DefaultRegion, producer)
	p.Session.OnMessage(func(ctx context.Context, m platform.Message) {
		if _, err := adapter.HandleMessage(ctx, m); err != nil {
			log.Printf("ingress: message %s in %s: %v", m.ID, m.ChannelID, err)
		}
	})
	scanner := outbox.NewScanner(store, p.Client, cfg.Sync.OutboxInterval, cfg.Sync.OutboxRate, cfg.Sync.OutboxPrefix, producer)
	backfiller := backfill.New(p.Client, adapter, cfg.Sync.HistoryPageSize)

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	h := router.New(router.Handlers{
		Health:     handler.NewHealthHandler(store, p.Loop),
		Tickets:    handler.NewTicketHandler(store, producer),
		Messages:   handler.NewMessageHandler(store, scanner),
		Channels:   handler.NewChannelHandler(p.Client, channels, store, cfg.Discord.CategoryID),
		Admin:      handler.NewAdminHandler(store, backfiller, channels, cfg.Discord.CategoryID, cfg.Sync.HistoryLimit),
		AdminToken: cfg.AdminToken,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// admin sync can page through long histories
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &API{
		cfg:        cfg,
		db:         db,
		platform:   p,
		adapter:    adapter,
		scanner:    scanner,
		backfiller: backfiller,
		producer:   producer,
		channels:   channels,
		httpSrv:    httpSrv,
	}, nil
}

// Run запускает все компоненты, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s%s", base, paths.PathSwagger)
	log.Printf("  Health:        %s%s", base, paths.PathHealth)
	log.Printf("  Ready:         %s%s", base, paths.PathReady)
	log.Printf("  API v1:        %s/api/v1/", base)
	log.Printf("monitoring category %s (db %s, events %t, cache %t)",
		a.cfg.Discord.CategoryID, database.Dialect(a.db), a.producer.Enabled(), a.channels.Enabled())

	a.platform.Start(ctx)
	go a.scanner.Run(ctx)
	go a.backfiller.Start(ctx, a.platform.Loop, a.cfg.Sync.BackfillInterval, a.cfg.Sync.HistoryLimit)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.platform.Close(); err != nil {
		log.Printf("discord: close: %v", err)
	}
	if err := a.producer.Close(); err != nil {
		log.Printf("kafka: close: %v", err)
	}
	if err := a.channels.Close(); err != nil {
		log.Printf("cache: close: %v", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return runErr
}
