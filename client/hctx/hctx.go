package hctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godii/transgemma/client/data"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Needed to use sqlite without CGO
	"github.com/glebarez/sqlite"
)

var (
	transgemmaLogger *logrus.Logger
	getLoggerOnce    sync.Once
)

func GetLogger() *logrus.Logger {
	getLoggerOnce.Do(func() {
		err := MakeTransgemmaDir()
		if err != nil {
			panic(err)
		}

		lumberjackLogger := &lumberjack.Logger{
			Filename:   filepath.Join(data.GetTransgemmaPath(), data.LOG_PATH),
			MaxSize:    1, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}

		logFormatter := new(logrus.TextFormatter)
		logFormatter.TimestampFormat = time.RFC3339
		logFormatter.FullTimestamp = true

		transgemmaLogger = logrus.New()
		transgemmaLogger.SetFormatter(logFormatter)
		transgemmaLogger.SetLevel(logrus.InfoLevel)
		transgemmaLogger.SetOutput(lumberjackLogger)
	})
	return transgemmaLogger
}

func MakeTransgemmaDir() error {
	err := os.MkdirAll(data.GetTransgemmaPath(), 0o744)
	if err != nil {
		return fmt.Errorf("failed to create %s dir: %w", data.GetTransgemmaPath(), err)
	}
	return nil
}

func OpenLocalSqliteDb() (*gorm.DB, error) {
	err := MakeTransgemmaDir()
	if err != nil {
		return nil, err
	}
	return OpenSqliteDb(filepath.Join(data.GetTransgemmaPath(), data.DB_PATH))
}

// OpenSqliteDb opens (and creates if needed) the key/value database stored at dbFilePath.
func OpenSqliteDb(dbFilePath string) (*gorm.DB, error) {
	newLogger := logger.New(
		GetLogger().WithField("fromSQL", true),
		logger.Config{
			SlowThreshold:             100 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	// Writers from other processes wait on the lock instead of failing straight away.
	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_pragma=busy_timeout(5000)", dbFilePath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true, Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the DB: %w", err)
	}
	tx, err := db.DB()
	if err != nil {
		return nil, err
	}
	err = tx.Ping()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&data.KeyValue{}); err != nil {
		return nil, fmt.Errorf("failed to migrate the local DB: %w", err)
	}
	db.Exec("PRAGMA journal_mode = WAL")
	return db, nil
}

type transgemmaContextKey string

const (
	configCtxKey   transgemmaContextKey = "config"
	dbCtxKey       transgemmaContextKey = "db"
	settingsCtxKey transgemmaContextKey = "settings"
)

func MakeContext() context.Context {
	ctx := context.Background()
	err := InitConfig()
	if err != nil {
		panic(fmt.Errorf("failed to initialize config: %w", err))
	}
	config, err := GetConfig()
	if err != nil {
		panic(fmt.Errorf("failed to retrieve config: %w", err))
	}
	ctx = context.WithValue(ctx, configCtxKey, &config)
	ctx = context.WithValue(ctx, settingsCtxKey, NewSettingsCache(config.Settings))
	db, err := OpenLocalSqliteDb()
	if err != nil {
		panic(fmt.Errorf("failed to open local DB: %w", err))
	}
	ctx = context.WithValue(ctx, dbCtxKey, db)
	return ctx
}

// MakeContextWith builds a context from explicit dependencies instead of the on-disk state.
func MakeContextWith(ctx context.Context, config *ClientConfig, db *gorm.DB) context.Context {
	ctx = context.WithValue(ctx, configCtxKey, config)
	ctx = context.WithValue(ctx, settingsCtxKey, NewSettingsCache(config.Settings))
	return context.WithValue(ctx, dbCtxKey, db)
}

func GetConf(ctx context.Context) *ClientConfig {
	v := ctx.Value(configCtxKey)
	if v != nil {
		return v.(*ClientConfig)
	}
	panic(fmt.Errorf("failed to find config in ctx"))
}

func GetDb(ctx context.Context) *gorm.DB {
	v := ctx.Value(dbCtxKey)
	if v != nil {
		return v.(*gorm.DB)
	}
	panic(fmt.Errorf("failed to find db in ctx"))
}

func GetSettings(ctx context.Context) *SettingsCache {
	v := ctx.Value(settingsCtxKey)
	if v != nil {
		return v.(*SettingsCache)
	}
	panic(fmt.Errorf("failed to find settings in ctx"))
}

type ClientConfig struct {
	// User preferences shared with the translation UI
	Settings Settings `json:"settings"`
	// The entitlement authority to talk to. Overridden by $TRANSGEMMA_SERVER.
	ServerURL string `json:"server_url"`
	// Either "http" (default) or "offline"
	BackendType string `json:"backend_type"`
	// Daily allowances for users without an active license
	ParagraphLimit int `json:"paragraph_limit"`
	SelectionLimit int `json:"selection_limit"`
	// Upper bound on a single request to the entitlement authority
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`
}

type Settings struct {
	HoverEnabled  bool   `json:"hover_enabled"`
	SelectEnabled bool   `json:"select_enabled"`
	SourceLang    string `json:"source_lang"`
	TargetLang    string `json:"target_lang"`
	Locale        string `json:"locale"`
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		Settings: Settings{
			HoverEnabled:  true,
			SelectEnabled: true,
			SourceLang:    "auto",
			TargetLang:    "English",
			Locale:        data.LocaleEnglish,
		},
		BackendType:        "http",
		ParagraphLimit:     data.FREE_PARAGRAPH_LIMIT,
		SelectionLimit:     data.FREE_SELECTION_LIMIT,
		HTTPTimeoutSeconds: 5,
	}
}

func SupportedLocales() []string {
	return slices.Clone(data.SupportedLocales)
}

func SupportedBackendTypes() []string {
	return []string{"http", "offline"}
}

func (c *ClientConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func GetConfigContents() ([]byte, error) {
	dat, err := os.ReadFile(filepath.Join(data.GetTransgemmaPath(), data.CONFIG_PATH))
	if err != nil {
		files, err := os.ReadDir(data.GetTransgemmaPath())
		if err != nil {
			return nil, fmt.Errorf("failed to read config file (and failed to list too): %w", err)
		}
		filenames := ""
		for _, file := range files {
			filenames += file.Name()
			filenames += ", "
		}
		return nil, fmt.Errorf("failed to read config file (files in %s: %s): %w", data.GetTransgemmaPath(), filenames, err)
	}
	return dat, nil
}

func GetConfig() (ClientConfig, error) {
	contents, err := GetConfigContents()
	if err != nil {
		return ClientConfig{}, err
	}
	var config ClientConfig
	err = json.Unmarshal(contents, &config)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	defaults := DefaultConfig()
	if config.Settings.SourceLang == "" {
		config.Settings.SourceLang = defaults.Settings.SourceLang
	}
	if config.Settings.TargetLang == "" {
		config.Settings.TargetLang = defaults.Settings.TargetLang
	}
	if !slices.Contains(SupportedLocales(), config.Settings.Locale) {
		config.Settings.Locale = defaults.Settings.Locale
	}
	if !slices.Contains(SupportedBackendTypes(), config.BackendType) {
		config.BackendType = defaults.BackendType
	}
	if config.ParagraphLimit <= 0 {
		config.ParagraphLimit = defaults.ParagraphLimit
	}
	if config.SelectionLimit <= 0 {
		config.SelectionLimit = defaults.SelectionLimit
	}
	if config.HTTPTimeoutSeconds <= 0 {
		config.HTTPTimeoutSeconds = defaults.HTTPTimeoutSeconds
	}
	return config, nil
}

func SetConfig(config *ClientConfig) error {
	serializedConfig, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	err = MakeTransgemmaDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(data.GetTransgemmaPath(), data.CONFIG_PATH)
	stagedConfigPath := configPath + ".tmp-" + fmt.Sprint(os.Getpid())
	err = os.WriteFile(stagedConfigPath, serializedConfig, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	err = os.Rename(stagedConfigPath, configPath)
	if err != nil {
		return fmt.Errorf("failed to replace config file with the updated version: %w", err)
	}
	return nil
}

// InitConfig writes the default config on first run. Existing configs are left untouched.
func InitConfig() error {
	_, err := os.Stat(filepath.Join(data.GetTransgemmaPath(), data.CONFIG_PATH))
	if errors.Is(err, os.ErrNotExist) {
		config := DefaultConfig()
		return SetConfig(&config)
	}
	return err
}
