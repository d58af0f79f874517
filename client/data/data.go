package data

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godii/transgemma/shared"
)

const (
	CONFIG_PATH = ".transgemma.config"
	DB_PATH     = ".transgemma.db"
	LOG_PATH    = "transgemma.log"
)

const (
	defaultTransgemmaPath = ".transgemma"
)

// Storage keys in the local key/value store
const (
	KeyDeviceId   = "deviceId"
	KeyUsageStats = "usageStats"
	KeyLicense    = "license"
)

const (
	FREE_PARAGRAPH_LIMIT = 10
	FREE_SELECTION_LIMIT = 10
)

type ActionType string

const (
	ActionParagraph ActionType = "paragraph"
	ActionSelection ActionType = "selection"
)

var AllActionTypes = []ActionType{ActionParagraph, ActionSelection}

func ParseActionType(s string) (ActionType, error) {
	switch ActionType(strings.ToLower(strings.TrimSpace(s))) {
	case ActionParagraph:
		return ActionParagraph, nil
	case ActionSelection:
		return ActionSelection, nil
	default:
		return "", fmt.Errorf("unknown action type %#v, must be one of: paragraph, selection", s)
	}
}

// UsageStats is the per-day counter record for the two metered actions. Date is the
// calendar day (local time) of the last write.
type UsageStats struct {
	Date           string `json:"date"`
	ParagraphCount int    `json:"paragraphCount"`
	SelectionCount int    `json:"selectionCount"`
}

func (s UsageStats) Count(action ActionType) int {
	if action == ActionParagraph {
		return s.ParagraphCount
	}
	return s.SelectionCount
}

func (s *UsageStats) Increment(action ActionType) {
	if action == ActionParagraph {
		s.ParagraphCount++
	} else {
		s.SelectionCount++
	}
}

func EmptyUsageStats(day string) UsageStats {
	return UsageStats{Date: day, ParagraphCount: 0, SelectionCount: 0}
}

// License is the locally cached entitlement. Timestamps are epoch milliseconds so the
// stored record matches the wire format of the entitlement authority.
type License struct {
	Code         string `json:"code"`
	Valid        bool   `json:"valid"`
	DeviceId     string `json:"deviceId"`
	ActivateTime int64  `json:"activateTime"`
	ExpireTime   int64  `json:"expireTime"`
	DeviceCount  int    `json:"deviceCount"`
}

func (l *License) ActivatedAt() time.Time {
	return shared.FromEpochMillis(l.ActivateTime)
}

func (l *License) ExpiresAt() time.Time {
	return shared.FromEpochMillis(l.ExpireTime)
}

// IsEntitling reports whether the license currently unlocks unlimited usage. A nil
// license never entitles.
func (l *License) IsEntitling(now time.Time) bool {
	return l != nil && l.Valid && l.ExpireTime > now.UnixMilli()
}

// DayOf formats t as the local calendar day used for UsageStats.Date.
func DayOf(t time.Time) string {
	return t.Local().Format(shared.DateOnly)
}

func GetTransgemmaPath() string {
	transgemmaPath := os.Getenv("TRANSGEMMA_PATH")
	if transgemmaPath != "" {
		return transgemmaPath
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(userHome, defaultTransgemmaPath)
}

// KeyValue is a row of the local key/value store. Value holds the JSON encoding of
// the stored record.
type KeyValue struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
