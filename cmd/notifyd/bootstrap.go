package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/roomnotify/internal/api"
	"github.com/charlesng35/roomnotify/internal/app"
	"github.com/charlesng35/roomnotify/internal/app/maintenance"
	iauth "github.com/charlesng35/roomnotify/internal/auth"
	"github.com/charlesng35/roomnotify/internal/database"
	"github.com/charlesng35/roomnotify/internal/delivery"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	"github.com/charlesng35/roomnotify/internal/store"
	"github.com/charlesng35/roomnotify/internal/timeline"
	"github.com/charlesng35/roomnotify/pkg/logger"
)

// The rules cache also supplies the rooms muted by override rules.
var _ notification.MutedRooms = (*pushrules.Cache)(nil)

// runtimeStack bundles long-lived services used by the daemon.
type runtimeStack struct {
	DB         *gorm.DB
	Store      *store.Store
	Timeline   *timeline.Service
	Rules      *pushrules.Cache
	Engine     *notification.Engine
	Hub        *delivery.Hub
	Dispatcher *delivery.Dispatcher
	Scheduler  *maintenance.Scheduler
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, the notification engine, its background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if stack.Store, err = store.New(stack.DB); err != nil {
		return nil, fmt.Errorf("initialise notification store: %w", err)
	}
	if stack.Timeline, err = timeline.New(stack.DB); err != nil {
		return nil, fmt.Errorf("initialise timeline service: %w", err)
	}

	stack.Rules, err = loadPushRules(ctx, stack.Store, cfg.Notifications.UserID)
	if err != nil {
		return nil, err
	}

	matcher := pushrules.NewEventConditionMatcher(cfg.Notifications.UserID, stack.Timeline)
	converter := notification.NewConverter(stack.Timeline, pushrules.NewEvaluator(matcher))
	processor := notification.NewProcessor(stack.Timeline, stack.Store, converter, notification.Config{
		EnableExternalNotifications: cfg.Notifications.EnableExternalNotifications,
	})
	stack.Engine = notification.NewEngine(processor, stack.Store, stack.Rules,
		notification.WithMaxConcurrentRooms(cfg.Engine.MaxConcurrentRooms),
	)

	var drainer maintenance.Drainer
	if cfg.Notifications.EnableExternalNotifications {
		stack.Hub = delivery.NewHub()
		if stack.Dispatcher, err = delivery.NewDispatcher(stack.Store, stack.Hub); err != nil {
			return nil, fmt.Errorf("initialise delivery dispatcher: %w", err)
		}
		stack.Dispatcher.SetBatchSize(cfg.Engine.DeliveryBatchSize)
		drainer = stack.Dispatcher
	}

	stack.Scheduler = maintenance.NewScheduler(stack.Engine, drainer,
		maintenance.WithReconcileSchedule(cfg.Engine.ReconcileSchedule),
		maintenance.WithDeliverySchedule(cfg.Engine.DeliverySchedule),
	)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	deps := api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Notifications: stack.Store,
		RuleStore:     stack.Store,
		Rules:         stack.Rules,
		Ping:          pingDatabase(stack.DB),
	}
	if stack.Hub != nil {
		deps.Stream = stack.Hub
	}
	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, runs a final reconcile and drain, and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		stopCtx := s.Scheduler.Stop()
		<-stopCtx.Done()
		if err := s.Scheduler.RunOnce(ctx); err != nil {
			log.Warn("final reconciliation failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func loadPushRules(ctx context.Context, s *store.Store, userID string) (*pushrules.Cache, error) {
	cache := pushrules.NewCache()
	rs, err := s.LoadRuleSet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load push rules: %w", err)
	}
	if rs == nil {
		logger.WithModule("bootstrap").Info("no stored push rules; nothing will notify until rules are set",
			zap.String("user_id", userID))
		return cache, nil
	}
	if err := cache.Set(rs); err != nil {
		return nil, fmt.Errorf("install push rules: %w", err)
	}
	return cache, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
