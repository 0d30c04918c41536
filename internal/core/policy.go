package core

import (
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
)

// Environment is the runtime signal set a PolicyGate consults alongside
// the static schedule/network/battery config: the bits that change from
// moment to moment rather than living in the config file.
type Environment struct {
	SSID        string
	Metered     bool
	OnBattery   bool
	BatteryFrac float64 // 0..1, only meaningful when OnBattery
}

// NotificationSuppressor is the side-effect target for a
// suppress-notifications quiet-hours action. The local control surface
// implements this; PolicyGate only ever calls SetSuppressed.
type NotificationSuppressor interface {
	SetSuppressed(bool)
}

const defaultBatteryThreshold = 0.20

// PolicyGate is the pure-ish predicate gating whether a folder's plan may
// execute right now, per §4.11. "Pure-ish" because evaluating it can also
// apply side-effecting advisories — a temporary bandwidth cap, muting
// notifications — derived from the same schedule state, grounded on the
// teacher's Orchestrator.isDrivePaused/clearExpiredPauses pattern of
// checking a time-bounded condition on every cycle rather than scheduling
// a separate timer goroutine per window.
type PolicyGate struct {
	logger           *slog.Logger
	bandwidth        *BandwidthLimiter
	notifier         NotificationSuppressor
	batteryThreshold float64

	mu        stdsync.Mutex
	schedules config.SchedulesConfig
}

// NewPolicyGate constructs a gate. notifier may be nil if the binary has
// no notification surface to suppress.
func NewPolicyGate(bandwidth *BandwidthLimiter, notifier NotificationSuppressor, logger *slog.Logger) *PolicyGate {
	if logger == nil {
		logger = slog.Default()
	}

	return &PolicyGate{
		logger:           logger,
		bandwidth:        bandwidth,
		notifier:         notifier,
		batteryThreshold: defaultBatteryThreshold,
	}
}

// SetSchedule updates the quiet-hours/network-rules config consulted by
// Allow. Called on config load and SIGHUP reload.
func (g *PolicyGate) SetSchedule(schedules config.SchedulesConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.schedules = schedules
}

// Allow reports whether folder's plan may execute right now, applying any
// bandwidth/notification advisories a currently-active quiet-hours window
// implies as a side effect of the check.
func (g *PolicyGate) Allow(folder *config.ResolvedFolder, now time.Time, env Environment) bool {
	if folder.Paused {
		return false
	}

	g.mu.Lock()
	schedules := g.schedules
	g.mu.Unlock()

	if !g.applyQuietHours(folder, schedules.QuietHours, now) {
		return false
	}

	if !g.checkNetworkRules(schedules.NetworkRules, env) {
		return false
	}

	if env.OnBattery && env.BatteryFrac < g.batteryThreshold {
		g.logger.Debug("policy gate denying folder: low battery",
			slog.String("folder", folder.ID.String()), slog.Float64("battery_frac", env.BatteryFrac))

		return false
	}

	return true
}

// applyQuietHours evaluates every configured window against now. A
// pause window denies outright. A limit-speed window sets the bandwidth
// cap; when no limit-speed window is currently active the folder's own
// configured limits are restored, so the cap doesn't stay clamped after
// the window ends. A suppress-notifications window mutes the notifier for
// its duration and unmutes it once the window ends.
func (g *PolicyGate) applyQuietHours(folder *config.ResolvedFolder, windows []config.QuietHoursWindow, now time.Time) bool {
	limiting := false
	suppressing := false

	for _, w := range windows {
		if !windowActive(w, now) {
			continue
		}

		switch w.Action {
		case "pause":
			g.logger.Debug("policy gate denying folder: quiet hours pause window active",
				slog.String("folder", folder.ID.String()))

			return false
		case "limit-speed":
			limiting = true

			g.bandwidth.SetLimit(DirectionUpload, int64(w.LimitKbps))
			g.bandwidth.SetLimit(DirectionDownload, int64(w.LimitKbps))
		case "suppress-notifications":
			suppressing = true

			if g.notifier != nil {
				g.notifier.SetSuppressed(true)
			}
		}
	}

	if !limiting {
		g.bandwidth.SetLimit(DirectionUpload, int64(folder.Performance.UploadLimitKbps))
		g.bandwidth.SetLimit(DirectionDownload, int64(folder.Performance.DownloadLimitKbps))
	}

	if !suppressing && g.notifier != nil {
		g.notifier.SetSuppressed(false)
	}

	return true
}

// windowActive reports whether now falls within w's days-of-week and
// HH:MM time-of-day range.
func windowActive(w config.QuietHoursWindow, now time.Time) bool {
	if len(w.Days) > 0 && !containsDay(w.Days, now.Weekday()) {
		return false
	}

	start, err := time.Parse("15:04", w.StartTime)
	if err != nil {
		return false
	}

	end, err := time.Parse("15:04", w.EndTime)
	if err != nil {
		return false
	}

	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	endMinutes := end.Hour()*60 + end.Minute()

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes < endMinutes
	}

	// Window wraps past midnight, e.g. 22:00-06:00.
	return nowMinutes >= startMinutes || nowMinutes < endMinutes
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

func containsDay(days []string, weekday time.Weekday) bool {
	name := weekdayNames[weekday]

	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}

	return false
}

// checkNetworkRules applies the blocked/allowed SSID sets and metered
// behavior. LAN-only is a transport-layer concern (whether a peer dial is
// attempted over WAN at all) and is intentionally not checked here: by
// the time a plan reaches PolicyGate, PeerSession has already decided which
// peers are reachable.
func (g *PolicyGate) checkNetworkRules(rules config.NetworkRules, env Environment) bool {
	if env.SSID != "" {
		for _, blocked := range rules.BlockedSSIDs {
			if strings.EqualFold(blocked, env.SSID) {
				return false
			}
		}

		if len(rules.AllowedSSIDs) > 0 {
			allowed := false

			for _, a := range rules.AllowedSSIDs {
				if strings.EqualFold(a, env.SSID) {
					allowed = true

					break
				}
			}

			if !allowed {
				return false
			}
		}
	}

	if env.Metered {
		switch rules.MeteredBehavior {
		case "block":
			return false
		case "limit":
			g.bandwidth.SetLimit(DirectionUpload, int64(rules.MeteredLimitKbps))
			g.bandwidth.SetLimit(DirectionDownload, int64(rules.MeteredLimitKbps))
		}
	}

	return true
}
