package shared

import (
	"strings"
	"time"
)

const (
	ActivatePath = "/api/license/activate"
	VerifyPath   = "/api/license/verify"
	PingPath     = "/api/ping"

	// The maximum number of devices that can be bound to a single license code
	MaxDevicesPerLicense = 5

	DateOnly = "2006-01-02"
)

type ActivateRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	DeviceId string `json:"deviceId" validate:"required,len=32,hexadecimal"`
}

type ActivateResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	ExpireAt    int64  `json:"expireAt,omitempty"`
	DeviceCount int    `json:"deviceCount,omitempty"`
}

type VerifyRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	DeviceId string `json:"deviceId" validate:"required,len=32,hexadecimal"`
}

type VerifyResponse struct {
	Valid       bool  `json:"valid"`
	ExpireAt    int64 `json:"expireAt,omitempty"`
	DeviceCount int   `json:"deviceCount,omitempty"`
}

// NormalizeCode canonicalizes a user-entered license code. Codes are compared
// and stored in this form on both the client and the server.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ToEpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromEpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
