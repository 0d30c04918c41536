package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/peerid"
)

type fakeSuppressor struct {
	suppressed bool
}

func (f *fakeSuppressor) SetSuppressed(v bool) { f.suppressed = v }

func testFolder(t *testing.T) *config.ResolvedFolder {
	t.Helper()

	return &config.ResolvedFolder{
		ID: peerid.NewFolderID("f1"),
		Performance: config.PerformanceConfig{
			UploadLimitKbps:   500,
			DownloadLimitKbps: 500,
		},
	}
}

func TestPolicyGate_DeniesWhenFolderPaused(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))

	f := testFolder(t)
	f.Paused = true

	assert.False(t, g.Allow(f, time.Now(), Environment{}))
}

func TestPolicyGate_QuietHoursPauseDenies(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))

	now := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC) // Thursday
	g.SetSchedule(config.SchedulesConfig{
		QuietHours: []config.QuietHoursWindow{
			{Days: []string{"thu"}, StartTime: "22:00", EndTime: "06:00", Action: "pause"},
		},
	})

	assert.False(t, g.Allow(testFolder(t), now, Environment{}))
}

func TestPolicyGate_QuietHoursLimitSpeedAppliesAndRestores(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))

	inWindow := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	g.SetSchedule(config.SchedulesConfig{
		QuietHours: []config.QuietHoursWindow{
			{Days: []string{"thu"}, StartTime: "22:00", EndTime: "06:00", Action: "limit-speed", LimitKbps: 50},
		},
	})

	f := testFolder(t)

	require.True(t, g.Allow(f, inWindow, Environment{}))
	require.NotNil(t, bw.upload)
	assert.Equal(t, float64(50*1024), float64(bw.upload.Limit()))

	require.True(t, g.Allow(f, outOfWindow, Environment{}))
	require.NotNil(t, bw.upload)
	assert.Equal(t, float64(500*1024), float64(bw.upload.Limit()))
}

func TestPolicyGate_BlockedSSIDDenies(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))
	g.SetSchedule(config.SchedulesConfig{
		NetworkRules: config.NetworkRules{BlockedSSIDs: []string{"Guest-WiFi"}},
	})

	assert.False(t, g.Allow(testFolder(t), time.Now(), Environment{SSID: "Guest-WiFi"}))
}

func TestPolicyGate_MeteredBlockDenies(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))
	g.SetSchedule(config.SchedulesConfig{
		NetworkRules: config.NetworkRules{MeteredBehavior: "block"},
	})

	assert.False(t, g.Allow(testFolder(t), time.Now(), Environment{Metered: true}))
}

func TestPolicyGate_LowBatteryDenies(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))

	assert.False(t, g.Allow(testFolder(t), time.Now(), Environment{OnBattery: true, BatteryFrac: 0.05}))
}

func TestPolicyGate_SuppressNotificationsToggles(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	suppressor := &fakeSuppressor{}
	g := NewPolicyGate(bw, suppressor, testLogger(t))

	inWindow := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	g.SetSchedule(config.SchedulesConfig{
		QuietHours: []config.QuietHoursWindow{
			{Days: []string{"thu"}, StartTime: "22:00", EndTime: "06:00", Action: "suppress-notifications"},
		},
	})

	require.True(t, g.Allow(testFolder(t), inWindow, Environment{}))
	assert.True(t, suppressor.suppressed)

	require.True(t, g.Allow(testFolder(t), outOfWindow, Environment{}))
	assert.False(t, suppressor.suppressed)
}

func TestPolicyGate_AllowsWithNoRestrictions(t *testing.T) {
	bw := NewBandwidthLimiter(0, 0, testLogger(t))
	g := NewPolicyGate(bw, nil, testLogger(t))

	assert.True(t, g.Allow(testFolder(t), time.Now(), Environment{}))
}
