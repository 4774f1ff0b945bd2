package backend

import (
	"context"
	"fmt"

	"carteira/internal/amqp"
	"carteira/internal/cache"
	"carteira/internal/config"
	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/kafka"
	"carteira/internal/log"
	"carteira/internal/sheets"
	"carteira/internal/sheets/google"
	sheetsmemory "carteira/internal/sheets/memory"
)

// NewPublisher returns the broker publisher selected by EVENTS_BROKER.
// With no broker events are discarded after the outbox relay claims them.
func NewPublisher(cfg *config.Config, logger *log.Logger) (events.Publisher, CleanupFunc, error) {
	switch cfg.EventsBroker {
	case "", "none":
		return events.Discard{}, nil, nil
	case "amqp":
		// The queue is declared here too so events published before the
		// worker first starts are kept.
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to AMQP: %w", err)
		}
		return client, client.Close, nil
	case "kafka":
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events broker: %s", cfg.EventsBroker)
	}
}

// NewConsumer returns the broker consumer selected by EVENTS_BROKER.
func NewConsumer(cfg *config.Config, logger *log.Logger) (events.Consumer, error) {
	switch cfg.EventsBroker {
	case "amqp":
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to AMQP: %w", err)
		}
		return client, nil
	case "kafka":
		return kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger), nil
	default:
		return nil, fmt.Errorf("events broker %q cannot be consumed; set EVENTS_BROKER to amqp or kafka", cfg.EventsBroker)
	}
}

// NewJournal returns the Google Sheets journal when a spreadsheet is
// configured and an in-process one otherwise.
func NewJournal(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Journal, error) {
	if !cfg.SheetsEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory")
		return sheetsmemory.New(), nil
	}
	client, err := google.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return client, nil
}

// SummaryCaches holds the read model caches and their housekeeping.
type SummaryCaches struct {
	Months  cache.Cache[core.MonthOverview]
	Wallets cache.Cache[core.WalletsOverview]
	Manager *cache.Manager
	Cleanup CleanupFunc
}

// NewSummaryCaches uses Redis when REDIS_URL is set and bounded in-process
// LRU caches otherwise.
func NewSummaryCaches(cfg *config.Config, logger *log.Logger) (*SummaryCaches, error) {
	mgr := cache.NewManager(logger)
	if cfg.RedisURL == "" {
		months := cache.NewLRUCache[core.MonthOverview](cfg.CacheSize, cfg.CacheTTL)
		wallets := cache.NewLRUCache[core.WalletsOverview](1, cfg.CacheTTL)
		mgr.Register(months)
		mgr.Register(wallets)
		return &SummaryCaches{Months: months, Wallets: wallets, Manager: mgr}, nil
	}

	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Using Redis for summary caches", "ttl", cfg.CacheTTL)
	return &SummaryCaches{
		Months:  cache.NewRedisCache[core.MonthOverview](client, "carteira:summary:month", cfg.CacheTTL),
		Wallets: cache.NewRedisCache[core.WalletsOverview](client, "carteira:summary:wallets", cfg.CacheTTL),
		Manager: mgr,
		Cleanup: client.Close,
	}, nil
}
