// Package store persists the client's local records (device id, daily usage counters and
// the cached license) in the local sqlite database. Each record is a JSON document in the
// key_values table. Missing keys are reported as absent, never as errors.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/godii/transgemma/client/data"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is the persistent key/value storage boundary used by the stores.
type KV interface {
	// Get decodes the value stored under key into out. It returns false if the key is absent.
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Update runs fn against a KV bound to one write transaction that holds the database's
	// write lock before key is read, so read-modify-write cycles on key are serialized
	// across every process sharing the database. fn may be retried and must not keep state
	// from an earlier attempt.
	Update(ctx context.Context, key string, fn func(tx KV) error) error
}

type SqliteKV struct {
	db *gorm.DB
}

func NewSqliteKV(db *gorm.DB) *SqliteKV {
	return &SqliteKV{db: db}
}

func (s *SqliteKV) Get(ctx context.Context, key string, out any) (bool, error) {
	var rows []data.KeyValue
	err := RetryingDbFunction(func() error {
		return s.db.WithContext(ctx).Where(&data.KeyValue{Key: key}).Limit(1).Find(&rows).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %#v from the local DB: %w", key, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(rows[0].Value), out); err != nil {
		return false, fmt.Errorf("failed to parse stored %#v: %w", key, err)
	}
	return true, nil
}

func (s *SqliteKV) Set(ctx context.Context, key string, value any) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %#v: %w", key, err)
	}
	row := data.KeyValue{Key: key, Value: string(serialized), UpdatedAt: time.Now()}
	err = RetryingDbFunction(func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to write %#v to the local DB: %w", key, err)
	}
	return nil
}

func (s *SqliteKV) Update(ctx context.Context, key string, fn func(tx KV) error) error {
	return RetryingDbFunction(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// A no-op write as the first statement takes the write lock even when key is absent.
			if err := tx.Exec("UPDATE `key_values` SET `value` = `value` WHERE `key` = ?", key).Error; err != nil {
				return fmt.Errorf("failed to lock %#v in the local DB: %w", key, err)
			}
			return fn(&SqliteKV{db: tx})
		})
	})
}

const SQLITE_LOCKED_ERR_MSG = "database is locked ("

func RetryingDbFunction(dbFunc func() error) error {
	var err error = nil
	i := 0
	for i = 0; i < 10; i++ {
		err = dbFunc()
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), SQLITE_LOCKED_ERR_MSG) {
			time.Sleep(time.Duration(i*rand.Intn(100)) * time.Millisecond)
			continue
		}
		return fmt.Errorf("unrecoverable sqlite error: %w", err)
	}
	return fmt.Errorf("failed to execute DB transaction even with %d retries: %w", i, err)
}
