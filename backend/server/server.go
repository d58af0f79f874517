package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godii/transgemma/backend/server/internal/database"
	"github.com/godii/transgemma/backend/server/internal/server"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ReleaseVersion string = "UNKNOWN"

// Config is read from TRANSGEMMA_* environment variables.
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`
	// When set, licenses are stored in postgres. Otherwise SQLitePath is used.
	PostgresDSN string  `envconfig:"POSTGRES_DB"`
	SQLitePath  string  `envconfig:"SQLITE_PATH" default:"transgemma-licenses.db"`
	StatsdAddr  string  `envconfig:"STATSD_ADDR"`
	Production  bool    `envconfig:"PRODUCTION" default:"false"`
	AdminToken  string  `envconfig:"ADMIN_TOKEN"`
	MaxDevices  int     `envconfig:"MAX_DEVICES" default:"5"`
	RateLimit   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateBurst   int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("TRANSGEMMA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.Production && ReleaseVersion == "UNKNOWN" {
		return nil, fmt.Errorf("server was built without a ReleaseVersion")
	}
	return &cfg, nil
}

func OpenDB(cfg *Config) (*database.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	var db *database.DB
	var err error
	if cfg.PostgresDSN != "" {
		db, err = database.OpenPostgres(cfg.PostgresDSN, gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the DB: %w", err)
		}
		if err := db.SetMaxIdleConns(10); err != nil {
			return nil, err
		}
	} else {
		db, err = database.OpenSQLite(cfg.SQLitePath, gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the DB: %w", err)
		}
		db.Exec("PRAGMA journal_mode = WAL")
	}
	if err := db.AddDatabaseTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := db.CreateIndices(); err != nil {
		return nil, fmt.Errorf("failed to create indices: %w", err)
	}
	return db, nil
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	db, err := OpenDB(cfg)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	options := []server.Option{
		server.WithReleaseVersion(ReleaseVersion),
		server.IsProductionEnvironment(cfg.Production),
		server.WithAdminToken(cfg.AdminToken),
		server.WithMaxDevices(cfg.MaxDevices),
		server.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}
	if cfg.StatsdAddr != "" {
		stats, err := statsd.New(cfg.StatsdAddr)
		if err != nil {
			fmt.Printf("Failed to start DataDog statsd: %v\n", err)
		} else {
			defer stats.Close()
			options = append(options, server.WithStatsd(stats))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.NewServer(db, options...).Run(ctx, cfg.Addr); err != nil {
		panic(err)
	}
}
