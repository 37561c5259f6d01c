package application

import (
	"context"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/backfill"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/database"
	"github.com/psds-microservice/ticket-bridge/internal/ingress"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/region"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

// RunSync подключается к Discord, один раз выполняет backfill и отключается.
// Пустой channelID означает всю категорию.
func RunSync(ctx context.Context, cfg *config.Config, channelID string, limit int, readyTimeout time.Duration) (backfill.Report, error) {
	if err := cfg.ValidateBridge(); err != nil {
		return backfill.Report{}, err
	}
	db, err := database.MigrateUp(ctx, cfg)
	if err != nil {
		return backfill.Report{}, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	classifier, err := region.FromConfig(cfg.Region.Strategy, cfg.Region.RulesFile)
	if err != nil {
		return backfill.Report{}, err
	}
	p, err := NewPlatform(cfg)
	if err != nil {
		return backfill.Report{}, err
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	defer producer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.Start(ctx)
	defer p.Close()
	if err := p.WaitReady(ctx, readyTimeout); err != nil {
		return backfill.Report{}, err
	}

	store := service.NewStore(db)
	adapter := ingress.NewAdapter(store, p.Client, cfg.Discord.CategoryID, classifier, cfg.Discord.DefaultRegion, producer)
	b := backfill.New(p.Client, adapter, cfg.Sync.HistoryPageSize)
	if channelID != "" {
		return b.RunChannel(ctx, channelID, limit)
	}
	return b.Run(ctx, limit)
}

// Reset удаляет все тикеты и сообщения.
func Reset(ctx context.Context, cfg *config.Config) (tickets, messages int64, err error) {
	if err := cfg.Validate(); err != nil {
		return 0, 0, err
	}
	db, err := database.MigrateUp(ctx, cfg)
	if err != nil {
		return 0, 0, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return service.NewStore(db).Purge(ctx)
}
