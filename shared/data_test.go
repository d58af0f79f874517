package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "AB-CD", NormalizeCode("  ab-CD  "))
	require.Equal(t, "TG-1234", NormalizeCode("\ttg-1234\n"))
	require.Equal(t, "", NormalizeCode("   "))
}

func TestEpochMillis(t *testing.T) {
	require.Equal(t, int64(0), ToEpochMillis(time.Time{}))
	require.True(t, FromEpochMillis(0).IsZero())

	ts := time.Date(2026, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	require.True(t, ts.Equal(FromEpochMillis(ToEpochMillis(ts))))
}

func TestActivateResponseOmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(ActivateResponse{Success: false, Message: "invalid code"})
	require.NoError(t, err)
	require.Equal(t, `{"success":false,"message":"invalid code"}`, string(b))

	var resp ActivateResponse
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"expireAt":1700000000000,"deviceCount":2}`), &resp))
	require.True(t, resp.Success)
	require.Equal(t, int64(1700000000000), resp.ExpireAt)
	require.Equal(t, 2, resp.DeviceCount)
}
