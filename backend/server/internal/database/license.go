package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownCode    = errors.New("unknown license code")
	ErrCodeRevoked    = errors.New("license code has been revoked")
	ErrCodeExpired    = errors.New("license code has expired")
	ErrDeviceLimit    = errors.New("license code is already bound to the maximum number of devices")
	ErrDeviceNotBound = errors.New("device is not bound to this license code")
)

type LicenseCode struct {
	Code      string    `json:"code" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	// The last moment at which the code can be redeemed for the first time. Nil means no deadline.
	NotAfter *time.Time `json:"not_after"`
	// Set by the first successful activation, the one-year validity runs from here.
	ActivatedAt *time.Time `json:"activated_at"`
	Note        string     `json:"note"`
	Revoked     bool       `json:"revoked"`
}

// ExpireAt is the end of the license's validity, or the zero time if it was never activated.
func (c *LicenseCode) ExpireAt() time.Time {
	if c.ActivatedAt == nil {
		return time.Time{}
	}
	return c.ActivatedAt.AddDate(1, 0, 0)
}

type DeviceBinding struct {
	Code           string    `json:"code" gorm:"primaryKey"`
	DeviceId       string    `json:"device_id" gorm:"primaryKey"`
	BoundAt        time.Time `json:"bound_at"`
	LastVerified   time.Time `json:"last_verified"`
	RegistrationIp string    `json:"registration_ip"`
}

// Entitlement is the state of a license code as seen by one bound device.
type Entitlement struct {
	Code        string
	ExpireAt    time.Time
	DeviceCount int
	NewlyBound  bool
}

type LicenseCodeSummary struct {
	LicenseCode
	DeviceCount int
}

func (db *DB) CreateLicenseCodes(ctx context.Context, codes ...*LicenseCode) error {
	tx := db.WithContext(ctx).Create(codes)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

func (db *DB) LicenseCodeByCode(ctx context.Context, code string) (*LicenseCode, error) {
	return findLicenseCode(db.WithContext(ctx), code)
}

func findLicenseCode(tx *gorm.DB, code string) (*LicenseCode, error) {
	var lc LicenseCode
	err := tx.Where("code = ?", code).First(&lc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up license code: %w", err)
	}
	return &lc, nil
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockLicenseCode loads code and holds its lock until tx ends, so activations of one code
// count and bind devices one at a time.
func lockLicenseCode(tx *gorm.DB, code string) (*LicenseCode, error) {
	if tx.Dialector.Name() == "sqlite" {
		// No row locks in sqlite. Writing first takes the database write lock instead.
		if err := tx.Exec("UPDATE license_codes SET code = code WHERE code = ?", code).Error; err != nil {
			return nil, fmt.Errorf("failed to lock license code: %w", err)
		}
	}
	return findLicenseCode(forUpdate(tx), code)
}

func countBindings(tx *gorm.DB, code string) (int64, error) {
	var cnt int64
	if err := tx.Model(&DeviceBinding{}).Where("code = ?", code).Count(&cnt).Error; err != nil {
		return 0, fmt.Errorf("failed to count device bindings: %w", err)
	}
	return cnt, nil
}

func (db *DB) CountBindings(ctx context.Context, code string) (int64, error) {
	return countBindings(db.WithContext(ctx), code)
}

func isExpired(lc *LicenseCode, now time.Time) bool {
	if lc.ActivatedAt == nil {
		return lc.NotAfter != nil && now.After(*lc.NotAfter)
	}
	return !now.Before(lc.ExpireAt())
}

// ActivateDevice binds deviceId to code. Activating from a device that is already bound succeeds
// without consuming another slot.
func (db *DB) ActivateDevice(ctx context.Context, code, deviceId, remoteIp string, now time.Time, maxDevices int) (*Entitlement, error) {
	var ent *Entitlement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lc, err := lockLicenseCode(tx, code)
		if err != nil {
			return err
		}
		if lc.Revoked {
			return ErrCodeRevoked
		}
		if isExpired(lc, now) {
			return ErrCodeExpired
		}

		var alreadyBound int64
		if err := tx.Model(&DeviceBinding{}).Where("code = ? AND device_id = ?", code, deviceId).Count(&alreadyBound).Error; err != nil {
			return fmt.Errorf("failed to check for an existing binding: %w", err)
		}
		numDevices, err := countBindings(tx, code)
		if err != nil {
			return err
		}
		newlyBound := alreadyBound == 0
		if newlyBound {
			if numDevices >= int64(maxDevices) {
				return ErrDeviceLimit
			}
			binding := DeviceBinding{Code: code, DeviceId: deviceId, BoundAt: now, LastVerified: now, RegistrationIp: remoteIp}
			if err := tx.Create(&binding).Error; err != nil {
				return fmt.Errorf("failed to bind device: %w", err)
			}
			numDevices++
		}
		if lc.ActivatedAt == nil {
			if err := tx.Model(&LicenseCode{}).Where("code = ?", code).Update("activated_at", now).Error; err != nil {
				return fmt.Errorf("failed to mark license code as activated: %w", err)
			}
			lc.ActivatedAt = &now
		}
		ent = &Entitlement{Code: code, ExpireAt: lc.ExpireAt(), DeviceCount: int(numDevices), NewlyBound: newlyBound}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func (db *DB) VerifyDevice(ctx context.Context, code, deviceId string, now time.Time) (*Entitlement, error) {
	tx := db.WithContext(ctx)
	lc, err := findLicenseCode(tx, code)
	if err != nil {
		return nil, err
	}
	if lc.Revoked {
		return nil, ErrCodeRevoked
	}
	r := tx.Model(&DeviceBinding{}).Where("code = ? AND device_id = ?", code, deviceId).Update("last_verified", now)
	if r.Error != nil {
		return nil, fmt.Errorf("failed to update device binding: %w", r.Error)
	}
	if r.RowsAffected == 0 {
		return nil, ErrDeviceNotBound
	}
	if isExpired(lc, now) {
		return nil, ErrCodeExpired
	}
	numDevices, err := countBindings(tx, code)
	if err != nil {
		return nil, err
	}
	return &Entitlement{Code: code, ExpireAt: lc.ExpireAt(), DeviceCount: int(numDevices)}, nil
}

func (db *DB) RevokeLicenseCode(ctx context.Context, code string) error {
	r := db.WithContext(ctx).Model(&LicenseCode{}).Where("code = ?", code).Update("revoked", true)
	if r.Error != nil {
		return fmt.Errorf("tx.Error: %w", r.Error)
	}
	if r.RowsAffected == 0 {
		return ErrUnknownCode
	}
	return nil
}

func (db *DB) LicenseCodeSummaries(ctx context.Context) ([]*LicenseCodeSummary, error) {
	var codes []*LicenseCode
	if err := db.WithContext(ctx).Order("created_at ASC").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("failed to list license codes: %w", err)
	}
	var counts []struct {
		Code        string
		DeviceCount int
	}
	err := db.WithContext(ctx).Model(&DeviceBinding{}).
		Select("code, COUNT(*) AS device_count").
		Group("code").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count device bindings: %w", err)
	}
	countByCode := make(map[string]int, len(counts))
	for _, c := range counts {
		countByCode[c.Code] = c.DeviceCount
	}
	summaries := make([]*LicenseCodeSummary, 0, len(codes))
	for _, lc := range codes {
		summaries = append(summaries, &LicenseCodeSummary{LicenseCode: *lc, DeviceCount: countByCode[lc.Code]})
	}
	return summaries, nil
}
