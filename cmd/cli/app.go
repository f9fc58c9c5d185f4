package cli

import (
	"context"
	"fmt"
	"time"

	"stagesync/internal/config"
	"stagesync/internal/handlers"
	"stagesync/internal/services"
	"stagesync/pkg/ghl"
	"stagesync/pkg/meta"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// app 进程内共享的服务
type app struct {
	db      *gorm.DB
	redis   *redis.Client
	breaker *services.CircuitBreaker
	rules   *services.RuleService
	creds   *services.CredentialService
	sync    *services.PipelineSyncService
	oauth   *services.OAuthService
	proc    *services.MessageProcessor
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.Log.Level == "debug" {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			logrus.Warnf("gorm tracing plugin: %v", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

// openRedis returns nil when redis is disabled.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var store services.StateStore = services.NewMemoryStateStore()
	if rdb != nil {
		store = services.NewRedisStateStore(rdb, "")
	} else {
		log.Warn("redis disabled, oauth state nonces are kept in memory (single instance only)")
	}

	provider, err := meta.NewProvider(cfg.OAuth.Provider, &meta.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Scopes:       cfg.OAuth.Scopes,
		GraphVersion: cfg.OAuth.GraphVersion,
		Timeout:      cfg.OAuth.Timeout,
	}, meta.WithLogger(log))
	if err != nil {
		return nil, err
	}

	a := &app{db: db, redis: rdb}
	a.breaker = services.NewCircuitBreaker(cfg.Sync.CircuitBreaker)
	a.rules = services.NewRuleService(db, log)
	a.creds = services.NewCredentialService(db, log)
	crm := ghl.NewClient(&ghl.Config{BaseURL: cfg.CRM.BaseURL, Timeout: cfg.CRM.Timeout}, log)
	a.sync = services.NewPipelineSyncService(crm, a.breaker, log)
	states := services.NewStateCodec(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL, store)
	a.oauth = services.NewOAuthService(provider, states, a.creds, cfg.RedirectURI(), log)
	a.proc = services.NewMessageProcessor(db, services.NewMatcher(a.rules), a.creds, a.sync, log)
	return a, nil
}

func (a *app) handlers(log *logrus.Logger) *handlers.Handlers {
	var rdb redis.Cmdable
	if a.redis != nil {
		rdb = a.redis
	}
	return &handlers.Handlers{
		Health:      handlers.NewHealthHandler(a.db, rdb, a.breaker, Version, log),
		Automation:  handlers.NewAutomationHandler(a.rules, a.proc),
		Integration: handlers.NewIntegrationHandler(a.creds, a.oauth, a.sync),
		OAuth:       handlers.NewOAuthHandler(a.oauth, log),
		Message:     handlers.NewMessageHandler(a.proc),
	}
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
