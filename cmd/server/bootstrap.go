package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/api"
	"github.com/charlesng35/reviewhub/internal/app"
	"github.com/charlesng35/reviewhub/internal/app/maintenance"
	iauth "github.com/charlesng35/reviewhub/internal/auth"
	"github.com/charlesng35/reviewhub/internal/database"
	"github.com/charlesng35/reviewhub/internal/middleware"
	"github.com/charlesng35/reviewhub/pkg/logger"
	"github.com/charlesng35/reviewhub/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Mailer    mail.Mailer
	Queue     *mail.QueueMailer
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime opens the database, selects the mail transport, starts
// maintenance jobs and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := stack.initialiseMailer(cfg, log); err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB,
			maintenance.WithPendingRetention(cfg.Verification.Retention()),
			maintenance.WithPendingSchedule(cfg.Maintenance.PendingSchedule),
			maintenance.WithReconcileSchedule(cfg.Maintenance.ReconcileSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.RateStore = middleware.NewMemoryRateStore()

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Mailer, stack.RateStore)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseMailer(cfg *app.Config, log *zap.Logger) error {
	switch cfg.Email.TransportName() {
	case app.EmailTransportQueue:
		queue, err := mail.NewQueueMailer(cfg.Email.QueueSettings())
		if err != nil {
			return fmt.Errorf("initialise mail queue: %w", err)
		}
		s.Queue = queue
		s.Mailer = queue
		log.Info("mail transport ready", zap.String("transport", app.EmailTransportQueue), zap.String("exchange", cfg.Email.Queue.Exchange))
	default:
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return fmt.Errorf("initialise smtp mailer: %w", err)
		}
		s.Mailer = mailer
		if !cfg.Email.SMTP.Enabled {
			log.Warn("smtp delivery disabled; verification codes will not be emailed")
		}
	}
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Queue != nil {
		if err := s.Queue.Close(); err != nil {
			log.Warn("mail queue shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:            strings.TrimSpace(cfg.Database.Path),
		DSN:             strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns:    cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.Pool.ConnMaxLifetime,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyAuthConfig(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyAuthConfig(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyAuthConfig(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
	if len(auth.Options) > 0 {
		dbCfg.Options = make(map[string]string, len(auth.Options))
		for k, v := range auth.Options {
			dbCfg.Options[k] = v
		}
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
