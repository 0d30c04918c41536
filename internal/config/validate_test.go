package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validFolder() Folder {
	return Folder{ID: "photos", Path: "/home/user/Photos", Mode: ModeSendReceive}
}

func validDevice() Device {
	return Device{ID: "laptop", PublicKey: "base64keydata"}
}

func TestValidate_DefaultConfigOK(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_FolderMissingPath(t *testing.T) {
	cfg := DefaultConfig()
	f := validFolder()
	f.Path = ""
	cfg.Folders = append(cfg.Folders, f)

	assert.ErrorContains(t, Validate(cfg), "path must not be empty")
}

func TestValidate_DuplicateFolderID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = append(cfg.Folders, validFolder(), validFolder())

	assert.ErrorContains(t, Validate(cfg), "duplicate folder id")
}

func TestValidate_InvalidFolderMode(t *testing.T) {
	cfg := DefaultConfig()
	f := validFolder()
	f.Mode = "bogus"
	cfg.Folders = append(cfg.Folders, f)

	assert.ErrorContains(t, Validate(cfg), "mode must be one of")
}

func TestValidate_TimeBasedRetentionRequiresDays(t *testing.T) {
	cfg := DefaultConfig()
	f := validFolder()
	f.RetentionPolicy = RetentionTimeBased
	cfg.Folders = append(cfg.Folders, f)

	assert.ErrorContains(t, Validate(cfg), "retentionDays must be positive")
}

func TestValidate_DeviceMissingPublicKey(t *testing.T) {
	cfg := DefaultConfig()
	d := validDevice()
	d.PublicKey = ""
	cfg.Devices = append(cfg.Devices, d)

	assert.ErrorContains(t, Validate(cfg), "publicKey must not be empty")
}

func TestValidate_QuietHoursBadTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedules.QuietHours = []QuietHoursWindow{
		{StartTime: "25:00", EndTime: "08:00", Action: "pause"},
	}

	assert.ErrorContains(t, Validate(cfg), "must be 00-23")
}

func TestValidate_QuietHoursBadAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedules.QuietHours = []QuietHoursWindow{
		{StartTime: "22:00", EndTime: "08:00", Action: "nonsense"},
	}

	assert.ErrorContains(t, Validate(cfg), "action: must be one of")
}

func TestValidate_NetworkRulesBadMeteredBehavior(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedules.NetworkRules.MeteredBehavior = "nonsense"

	assert.ErrorContains(t, Validate(cfg), "meteredBehavior")
}

func TestValidate_PerformanceOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.CompressionLevel = 99
	cfg.Performance.BlockSize = 1

	err := Validate(cfg)
	assert.ErrorContains(t, err, "compressionLevel")
	assert.ErrorContains(t, err, "blockSize")
}

func TestValidate_SecurityBadAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.EncryptionAlgorithm = "rot13"

	assert.ErrorContains(t, Validate(cfg), "encryptionAlgorithm")
}

func TestValidate_AdvancedBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Advanced.LogLevel = "verbose"

	assert.ErrorContains(t, Validate(cfg), "logLevel")
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.EncryptionAlgorithm = "rot13"
	cfg.Advanced.LogLevel = "verbose"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "encryptionAlgorithm")
	assert.ErrorContains(t, err, "logLevel")
}
