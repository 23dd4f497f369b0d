package cmd

import (
	"context"
	"fmt"
	"log"

	"isp-portal/internal/data/repository"
	"isp-portal/internal/gateway"
	"isp-portal/internal/sms"
	"isp-portal/internal/usecase"
	"isp-portal/pkg/broker"
	"isp-portal/pkg/cache"
	"isp-portal/pkg/database"
	"isp-portal/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runtime is everything a command needs once configuration is loaded.
type runtime struct {
	config    *utils.Config
	logger    *zap.Logger
	db        database.PgxIface
	repo      *repository.Repository
	deps      usecase.Deps
	publisher broker.Publisher
	redis     *redis.Client
}

func loadBase() (*utils.Config, *zap.Logger, error) {
	config, err := utils.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}

	return config, logger, nil
}

// bootstrap connects the database and the optional integrations. Anything
// left unconfigured falls back to its in-process or logging variant.
func bootstrap(ctx context.Context) (*runtime, error) {
	config, logger, err := loadBase()
	if err != nil {
		return nil, err
	}

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	db, err := database.InitDB(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("Database connected successfully")

	rt := &runtime{
		config: config,
		logger: logger,
		db:     db,
		repo:   repository.NewRepository(db, logger),
	}

	if config.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, config.Redis)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.redis = client
		rt.deps.Locker = cache.NewRedisLocker(client)
		rt.deps.SessionCache = cache.NewRedisSessionCache(client)
		logger.Info("Redis connected", zap.String("addr", config.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process activation locks")
	}

	if config.Gateway.BaseURL != "" {
		rt.deps.Gateway = gateway.NewZenoPayClient(config.Gateway.BaseURL, config.Gateway.APIKey, config.Gateway.Timeout, logger)
	} else {
		logger.Warn("GATEWAY_BASE_URL not set, payment initiation disabled")
	}

	if config.SMS.BaseURL != "" {
		rt.deps.SMS = sms.NewClient(config.SMS.BaseURL, config.SMS.APIKey, config.SMS.SenderID, config.SMS.Timeout, logger)
	} else {
		logger.Warn("SMS_BASE_URL not set, SMS messages will only be logged")
	}

	if config.Kafka.Enabled() {
		publisher, err := broker.NewKafkaPublisher(config.Kafka.Brokers, config.Kafka.TopicPrefix, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.publisher = publisher
	} else {
		rt.publisher = broker.NewLogPublisher(logger)
	}

	return rt, nil
}

func (rt *runtime) close() {
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			rt.logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
	rt.db.Close()
	rt.logger.Sync()
}
