package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/api"
	"github.com/ncastellanos/vecino/internal/app"
	"github.com/ncastellanos/vecino/internal/app/maintenance"
	iauth "github.com/ncastellanos/vecino/internal/auth"
	"github.com/ncastellanos/vecino/internal/cache"
	"github.com/ncastellanos/vecino/internal/database"
	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/internal/services"
	"github.com/ncastellanos/vecino/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vecino-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	dbStore := cache.NewDatabaseStore(db)

	var sharedStore cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(redisErr))
		} else {
			sharedStore = client
			defer client.Close()
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	hub := realtime.NewHub(nil, realtime.WithPingInterval(cfg.Panic.PingInterval))

	rateStore := middleware.NewSharedRateStore(sharedStore)

	router, alertService, err := api.NewRouter(db, jwtService, cfg, hub, rateStore)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	// The socket gateway feeds acknowledgments and resolutions back into the
	// same alert service the REST handlers use.
	hub.SetHandler(realtime.NewGateway(hub, services.NewAlertStoreAdapter(alertService)))

	sweeper := maintenance.NewSweeper(db, alertService)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := sweeper.Stop()
		if err := sweeper.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown sweep failed", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		return nil, fmt.Errorf("config path %q: %w", path, err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres", "postgresql":
		dbCfg.Host = cfg.Database.Postgres.Host
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = cfg.Database.Postgres.Database
		dbCfg.User = cfg.Database.Postgres.Username
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = cfg.Database.MySQL.Host
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = cfg.Database.MySQL.Database
		dbCfg.User = cfg.Database.MySQL.Username
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, err
	}

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable on shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
