package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation range constants.
const (
	minCompressionLevel = 1
	maxCompressionLevel = 9
	minBlockSize         = 4 * 1024
	maxBlockSize         = 16 * 1024 * 1024
	minConcurrentTransfers = 1
	maxConcurrentTransfers = 256
	minLogRetention      = 1
	scheduleHHMMParts    = 2
	maxScheduleHour      = 23
	maxScheduleMinute    = 59
	clearWinnerThreshold = 10_000 * time.Millisecond
)

// Validate checks all configuration values and returns every error found,
// rather than stopping at the first, so a user sees a complete report in
// one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateFolders(cfg.Folders)...)
	errs = append(errs, validateDevices(cfg.Devices)...)
	errs = append(errs, validateSchedules(&cfg.Schedules)...)
	errs = append(errs, validatePerformance(&cfg.Performance)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)
	errs = append(errs, validateAdvanced(&cfg.Advanced)...)

	return errors.Join(errs...)
}

var validModes = map[string]bool{ModeSendReceive: true, ModeReceiveOnly: true}

var validRetentionPolicies = map[string]bool{
	RetentionSimple:    true,
	RetentionTimeBased: true,
	RetentionNone:      true,
}

func validateFolders(folders []Folder) []error {
	var errs []error

	seen := make(map[string]bool, len(folders))

	for i := range folders {
		f := &folders[i]

		if f.ID == "" {
			errs = append(errs, fmt.Errorf("folders[%d]: id must not be empty", i))
		} else if seen[f.ID] {
			errs = append(errs, fmt.Errorf("folders[%d]: duplicate folder id %q", i, f.ID))
		}

		seen[f.ID] = true

		if f.Path == "" {
			errs = append(errs, fmt.Errorf("folder %q: path must not be empty", f.ID))
		}

		if f.Mode != "" && !validModes[f.Mode] {
			errs = append(errs, fmt.Errorf("folder %q: mode must be one of send-receive, receive-only; got %q", f.ID, f.Mode))
		}

		if f.RetentionPolicy != "" && !validRetentionPolicies[f.RetentionPolicy] {
			errs = append(errs, fmt.Errorf("folder %q: retentionPolicy must be one of simple, time-based, none; got %q",
				f.ID, f.RetentionPolicy))
		}

		if f.RetentionPolicy == RetentionTimeBased && f.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("folder %q: retentionDays must be positive for time-based retention", f.ID))
		}
	}

	return errs
}

func validateDevices(devices []Device) []error {
	var errs []error

	seen := make(map[string]bool, len(devices))

	for i := range devices {
		d := &devices[i]

		if d.ID == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: id must not be empty", i))
		} else if seen[d.ID] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate device id %q", i, d.ID))
		}

		seen[d.ID] = true

		if d.PublicKey == "" {
			errs = append(errs, fmt.Errorf("device %q: publicKey must not be empty", d.ID))
		}
	}

	return errs
}

func validateSchedules(s *SchedulesConfig) []error {
	var errs []error

	prevMinutes := -1

	for i := range s.QuietHours {
		w := &s.QuietHours[i]

		start, err := parseHHMM(w.StartTime)
		if err != nil {
			errs = append(errs, fmt.Errorf("quietHours[%d].startTime: %w", i, err))
		}

		if _, err := parseHHMM(w.EndTime); err != nil {
			errs = append(errs, fmt.Errorf("quietHours[%d].endTime: %w", i, err))
		}

		if !validQuietHoursActions[w.Action] {
			errs = append(errs, fmt.Errorf("quietHours[%d].action: must be one of pause, limit-speed, suppress-notifications; got %q",
				i, w.Action))
		}

		if err == nil && prevMinutes >= 0 && start < prevMinutes {
			errs = append(errs, fmt.Errorf("quietHours: entries should be sorted by startTime; entry %d is out of order", i))
		}

		if err == nil {
			prevMinutes = start
		}
	}

	if n := s.NetworkRules.MeteredBehavior; n != "" && !validMeteredBehaviors[n] {
		errs = append(errs, fmt.Errorf("networkRules.meteredBehavior: must be one of allow, limit, block; got %q", n))
	}

	return errs
}

var validQuietHoursActions = map[string]bool{
	"pause":                  true,
	"limit-speed":            true,
	"suppress-notifications": true,
}

var validMeteredBehaviors = map[string]bool{"allow": true, "limit": true, "block": true}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", scheduleHHMMParts)
	if len(parts) != scheduleHHMMParts {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > maxScheduleHour {
		return 0, fmt.Errorf("invalid hour in %q: must be 00-23", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > maxScheduleMinute {
		return 0, fmt.Errorf("invalid minute in %q: must be 00-59", s)
	}

	return hour*60 + minute, nil
}

func validatePerformance(p *PerformanceConfig) []error {
	var errs []error

	if p.UploadLimitKbps < 0 {
		errs = append(errs, fmt.Errorf("performance.uploadLimit: must be >= 0, got %d", p.UploadLimitKbps))
	}

	if p.DownloadLimitKbps < 0 {
		errs = append(errs, fmt.Errorf("performance.downloadLimit: must be >= 0, got %d", p.DownloadLimitKbps))
	}

	if p.MaxConcurrentTransfers < minConcurrentTransfers || p.MaxConcurrentTransfers > maxConcurrentTransfers {
		errs = append(errs, fmt.Errorf("performance.maxConcurrentTransfers: must be between %d and %d, got %d",
			minConcurrentTransfers, maxConcurrentTransfers, p.MaxConcurrentTransfers))
	}

	if p.CompressionLevel < minCompressionLevel || p.CompressionLevel > maxCompressionLevel {
		errs = append(errs, fmt.Errorf("performance.compressionLevel: must be between %d and %d, got %d",
			minCompressionLevel, maxCompressionLevel, p.CompressionLevel))
	}

	if p.BlockSize < minBlockSize || p.BlockSize > maxBlockSize {
		errs = append(errs, fmt.Errorf("performance.blockSize: must be between %d and %d bytes, got %d",
			minBlockSize, maxBlockSize, p.BlockSize))
	}

	return errs
}

var validEncryptionAlgorithms = map[string]bool{
	"aes-256-gcm":       true,
	"chacha20-poly1305": true,
}

var validDeviceVerification = map[string]bool{
	"always":     true,
	"first-time": true,
	"never":      true,
}

func validateSecurity(s *SecurityConfig) []error {
	var errs []error

	if !validEncryptionAlgorithms[s.EncryptionAlgorithm] {
		errs = append(errs, fmt.Errorf("security.encryptionAlgorithm: must be one of aes-256-gcm, chacha20-poly1305; got %q",
			s.EncryptionAlgorithm))
	}

	if !validDeviceVerification[s.DeviceVerification] {
		errs = append(errs, fmt.Errorf("security.deviceVerification: must be one of always, first-time, never; got %q",
			s.DeviceVerification))
	}

	return errs
}

var validSymbolicLinks = map[string]bool{"follow": true, "skip": true, "copy": true}
var validFilePermissions = map[string]bool{"preserve": true, "ignore": true}
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateAdvanced(a *AdvancedConfig) []error {
	var errs []error

	if !validSymbolicLinks[a.SymbolicLinks] {
		errs = append(errs, fmt.Errorf("advanced.symbolicLinks: must be one of follow, skip, copy; got %q", a.SymbolicLinks))
	}

	if !validFilePermissions[a.FilePermissions] {
		errs = append(errs, fmt.Errorf("advanced.filePermissions: must be one of preserve, ignore; got %q", a.FilePermissions))
	}

	if !validLogLevels[a.LogLevel] {
		errs = append(errs, fmt.Errorf("advanced.logLevel: must be one of debug, info, warn, error; got %q", a.LogLevel))
	}

	if a.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("advanced.logRetentionDays: must be >= %d, got %d", minLogRetention, a.LogRetentionDays))
	}

	return errs
}
