package device

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Sentinels substituted for signals the host cannot provide.
const (
	NoCanvas = "no-canvas"
	NoWebGL  = "no-webgl"
)

const renderFingerprintLen = 50

// Signals is the ordered list of environment attributes a device id is derived from.
type Signals struct {
	UserAgent         string
	Language          string
	Platform          string
	ScreenWidth       int
	ScreenHeight      int
	ColorDepth        int
	TimezoneOffset    int
	RenderFingerprint string
	GPURenderer       string
}

// Probe reports a capability-dependent signal, or false if the capability is unavailable.
type Probe func() (string, bool)

func (s Signals) components() []string {
	return []string{
		s.UserAgent,
		s.Language,
		s.Platform,
		fmt.Sprintf("%dx%d", s.ScreenWidth, s.ScreenHeight),
		fmt.Sprint(s.ColorDepth),
		fmt.Sprint(s.TimezoneOffset),
		s.RenderFingerprint,
		s.GPURenderer,
	}
}

func probeOr(p Probe, sentinel string) string {
	if p == nil {
		return sentinel
	}
	v, ok := p()
	if !ok || v == "" {
		return sentinel
	}
	return v
}

// Collector gathers Signals from the local machine. The probes can be swapped out in tests.
type Collector struct {
	Version     string
	Now         func() time.Time
	ScreenSize  func() (int, int, error)
	ColorDepth  func() int
	RenderProbe Probe
	GPUProbe    Probe
}

func NewCollector(version string) *Collector {
	return &Collector{
		Version:     version,
		Now:         time.Now,
		ScreenSize:  terminalSize,
		ColorDepth:  terminalColorDepth,
		RenderProbe: hostRenderFingerprint,
		GPUProbe:    drmAdapter,
	}
}

func (c *Collector) Collect() Signals {
	width, height := 0, 0
	if c.ScreenSize != nil {
		if w, h, err := c.ScreenSize(); err == nil {
			width, height = w, h
		}
	}
	depth := 0
	if c.ColorDepth != nil {
		depth = c.ColorDepth()
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Signals{
		UserAgent:         fmt.Sprintf("transgemma/%s (%s; %s)", c.Version, runtime.GOOS, runtime.GOARCH),
		Language:          language(),
		Platform:          runtime.GOOS + "/" + runtime.GOARCH,
		ScreenWidth:       width,
		ScreenHeight:      height,
		ColorDepth:        depth,
		TimezoneOffset:    timezoneOffset(now()),
		RenderFingerprint: probeOr(c.RenderProbe, NoCanvas),
		GPURenderer:       probeOr(c.GPUProbe, NoWebGL),
	}
}

// language returns the user's locale as a BCP 47-ish tag, e.g. "zh-CN" for LANG=zh_CN.UTF-8.
func language() string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		return strings.ReplaceAll(v, "_", "-")
	}
	return "C"
}

// timezoneOffset is the number of minutes to add to local time to get UTC.
func timezoneOffset(t time.Time) int {
	_, offset := t.Zone()
	return -offset / 60
}

func terminalSize() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd()))
}

func terminalColorDepth() int {
	switch termenv.NewOutput(os.Stdout).EnvColorProfile() {
	case termenv.TrueColor:
		return 24
	case termenv.ANSI256:
		return 8
	case termenv.ANSI:
		return 4
	default:
		return 1
	}
}

var machineIdPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

func hostRenderFingerprint() (string, bool) {
	machineId := ""
	for _, p := range machineIdPaths {
		b, err := os.ReadFile(p)
		if err == nil {
			machineId = strings.TrimSpace(string(b))
			break
		}
	}
	hostname, _ := os.Hostname()
	return renderFingerprint(machineId, hostname)
}

func renderFingerprint(machineId, hostname string) (string, bool) {
	if machineId == "" && hostname == "" {
		return "", false
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(machineId + "|" + hostname))
	if len(encoded) > renderFingerprintLen {
		encoded = encoded[len(encoded)-renderFingerprintLen:]
	}
	return encoded, true
}

func drmAdapter() (string, bool) {
	return drmAdapterIn("/sys/class/drm")
}

func drmAdapterIn(root string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(root, "card*", "device", "vendor"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, vendorPath := range matches {
		vendor, err := os.ReadFile(vendorPath)
		if err != nil {
			continue
		}
		device, err := os.ReadFile(filepath.Join(filepath.Dir(vendorPath), "device"))
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(vendor)) + ":" + strings.TrimSpace(string(device)), true
	}
	return "", false
}
