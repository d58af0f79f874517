package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/store"
	"github.com/godii/transgemma/shared/testutils"
	"github.com/stretchr/testify/require"
)

func sampleSignals() Signals {
	return Signals{
		UserAgent:         "transgemma/v0.1 (linux; amd64)",
		Language:          "zh-CN",
		Platform:          "linux/amd64",
		ScreenWidth:       1920,
		ScreenHeight:      1080,
		ColorDepth:        24,
		TimezoneOffset:    -480,
		RenderFingerprint: "YWJjZGVm",
		GPURenderer:       "0x8086:0x9a49",
	}
}

func TestDeriveFormat(t *testing.T) {
	s := sampleSignals()
	raw := "transgemma/v0.1 (linux; amd64)|||zh-CN|||linux/amd64|||1920x1080|||24|||-480|||YWJjZGVm|||0x8086:0x9a49"
	sum := sha256.Sum256([]byte(raw))
	require.Equal(t, hex.EncodeToString(sum[:])[:32], Derive(s))
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), Derive(s))
	require.Equal(t, Derive(s), Derive(sampleSignals()))
}

func TestDeriveSensitiveToEverySignal(t *testing.T) {
	base := Derive(sampleSignals())
	mutations := []func(*Signals){
		func(s *Signals) { s.UserAgent = "transgemma/v0.2 (linux; amd64)" },
		func(s *Signals) { s.Language = "en-US" },
		func(s *Signals) { s.Platform = "darwin/arm64" },
		func(s *Signals) { s.ScreenWidth = 1280 },
		func(s *Signals) { s.ScreenHeight = 720 },
		func(s *Signals) { s.ColorDepth = 8 },
		func(s *Signals) { s.TimezoneOffset = 0 },
		func(s *Signals) { s.RenderFingerprint = NoCanvas },
		func(s *Signals) { s.GPURenderer = NoWebGL },
	}
	seen := map[string]bool{base: true}
	for i, mutate := range mutations {
		s := sampleSignals()
		mutate(&s)
		id := Derive(s)
		require.False(t, seen[id], "mutation %d did not change the id", i)
		seen[id] = true
	}
}

func TestCollectUsesSentinels(t *testing.T) {
	c := &Collector{
		Version:     "v0.1",
		Now:         func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("CST", 8*60*60)) },
		ScreenSize:  func() (int, int, error) { return 0, 0, errors.New("not a terminal") },
		ColorDepth:  func() int { return 4 },
		RenderProbe: func() (string, bool) { return "", false },
		GPUProbe:    nil,
	}
	s := c.Collect()
	require.Equal(t, NoCanvas, s.RenderFingerprint)
	require.Equal(t, NoWebGL, s.GPURenderer)
	require.Equal(t, -480, s.TimezoneOffset)
	require.Equal(t, 0, s.ScreenWidth)
	require.Equal(t, 4, s.ColorDepth)
	require.Contains(t, s.UserAgent, "transgemma/v0.1 (")
	require.Len(t, Derive(s), 32)
}

func TestLanguage(t *testing.T) {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		t.Cleanup(testutils.BackupAndRestoreEnv(k))
		os.Unsetenv(k)
	}
	require.Equal(t, "C", language())
	os.Setenv("LANG", "zh_CN.UTF-8")
	require.Equal(t, "zh-CN", language())
	os.Setenv("LC_ALL", "de_DE@euro")
	require.Equal(t, "de-DE", language())
}

func TestRenderFingerprint(t *testing.T) {
	_, ok := renderFingerprint("", "")
	require.False(t, ok)

	fp, ok := renderFingerprint("4c4c4544004a3510804bb4c04f565931", "workstation.example.com")
	require.True(t, ok)
	require.Len(t, fp, 50)

	fp, ok = renderFingerprint("", "h")
	require.True(t, ok)
	require.Equal(t, "fGg=", fp)
}

func TestDrmAdapter(t *testing.T) {
	root := t.TempDir()
	_, ok := drmAdapterIn(root)
	require.False(t, ok)

	dev := filepath.Join(root, "card0", "device")
	require.NoError(t, os.MkdirAll(dev, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dev, "vendor"), []byte("0x8086\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dev, "device"), []byte("0x9a49\n"), 0o644))
	adapter, ok := drmAdapterIn(root)
	require.True(t, ok)
	require.Equal(t, "0x8086:0x9a49", adapter)
}

type countingKV struct {
	values map[string]string
	sets   int
	getErr error
	setErr error
}

func (kv *countingKV) Get(_ context.Context, key string, out any) (bool, error) {
	if kv.getErr != nil {
		return false, kv.getErr
	}
	v, ok := kv.values[key]
	if !ok {
		return false, nil
	}
	*(out.(*string)) = v
	return true, nil
}

func (kv *countingKV) Set(_ context.Context, key string, value any) error {
	kv.sets++
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.values[key] = value.(string)
	return nil
}

func (kv *countingKV) Update(_ context.Context, _ string, fn func(tx store.KV) error) error {
	return fn(kv)
}

func TestGetDeviceIDPersistsOnce(t *testing.T) {
	testutils.UseTempTransgemmaPath(t)
	ctx := context.Background()
	kv := &countingKV{values: map[string]string{}}
	collections := 0
	identity := NewIdentity(kv, func() Signals { collections++; return sampleSignals() })

	first := identity.GetDeviceID(ctx)
	require.Equal(t, Derive(sampleSignals()), first)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, identity.GetDeviceID(ctx))
	}
	require.Equal(t, 1, kv.sets)
	require.Equal(t, 1, collections)
	require.Equal(t, first, kv.values["deviceId"])

	// A new process reuses the persisted id even if the signals have changed
	changed := NewIdentity(kv, func() Signals { s := sampleSignals(); s.Language = "fr-FR"; return s })
	require.Equal(t, first, changed.GetDeviceID(ctx))
	require.Equal(t, 1, kv.sets)
}

func TestGetDeviceIDSurvivesStorageFailures(t *testing.T) {
	testutils.UseTempTransgemmaPath(t)
	kv := &countingKV{values: map[string]string{}, getErr: errors.New("disk on fire"), setErr: errors.New("disk on fire")}
	identity := NewIdentity(kv, sampleSignals)
	require.Equal(t, Derive(sampleSignals()), identity.GetDeviceID(context.Background()))
}

func TestGetDeviceIDAgreesAcrossDatabaseHandles(t *testing.T) {
	dir := testutils.UseTempTransgemmaPath(t)
	dbPath := filepath.Join(dir, data.DB_PATH)
	ids := make([]string, 6)
	done := make(chan struct{})
	for i := range ids {
		db, err := hctx.OpenSqliteDb(dbPath)
		require.NoError(t, err)
		go func(i int) {
			defer func() { done <- struct{}{} }()
			// Each handle collects different signals, only the first persisted id may win
			identity := NewIdentity(store.NewSqliteKV(db), func() Signals {
				s := sampleSignals()
				s.ScreenWidth = 1000 + i
				return s
			})
			ids[i] = identity.GetDeviceID(context.Background())
		}(i)
	}
	for range ids {
		<-done
	}
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}
