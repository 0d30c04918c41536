package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the file header written above the TOML-encoded defaults
// on first run, so a user opening the file for the first time sees where it
// came from before the generated sections.
const configTemplate = `# AirSync-Lite configuration
# Folders and devices are configured by editing this file; a running
# daemon reloads it on SIGHUP.

`

// CreateDefaultConfig writes a fresh config file containing the header
// template followed by DefaultConfig()'s TOML encoding. Used on first run
// when no config file exists yet.
func CreateDefaultConfig(path string) error {
	slog.Info("creating default config file", "path", path)

	var buf bytes.Buffer

	buf.WriteString(configTemplate)

	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	return atomicWriteFile(path, buf.Bytes())
}

// AddFolder appends a folder entry to the config file on disk. Unlike the
// colon-keyed section scheme this supersedes, folders are a native TOML
// array of tables, so the simplest correct edit is decode-mutate-encode
// rather than line-based text splicing: splicing into an array-of-tables
// section reliably requires a TOML-aware writer anyway, and the library
// already gives us one.
func AddFolder(path string, f Folder, logger *slog.Logger) error {
	logger.Info("adding folder to config", "path", path, "folder_id", f.ID)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return err
	}

	for _, existing := range cfg.Folders {
		if existing.ID == f.ID {
			return fmt.Errorf("folder %q already exists in config", f.ID)
		}
	}

	cfg.Folders = append(cfg.Folders, f)

	return writeConfig(path, cfg)
}

// RemoveFolder deletes a folder entry by id. Returns an error if no such
// folder exists.
func RemoveFolder(path, folderID string, logger *slog.Logger) error {
	logger.Info("removing folder from config", "path", path, "folder_id", folderID)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return err
	}

	idx := -1

	for i, f := range cfg.Folders {
		if f.ID == folderID {
			idx = i

			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("folder %q not found in config", folderID)
	}

	cfg.Folders = append(cfg.Folders[:idx], cfg.Folders[idx+1:]...)

	return writeConfig(path, cfg)
}

// AddDevice appends a paired device entry to the config file.
func AddDevice(path string, d Device, logger *slog.Logger) error {
	logger.Info("adding device to config", "path", path, "device_id", d.ID)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return err
	}

	for _, existing := range cfg.Devices {
		if existing.ID == d.ID {
			return fmt.Errorf("device %q already exists in config", d.ID)
		}
	}

	cfg.Devices = append(cfg.Devices, d)

	return writeConfig(path, cfg)
}

// RemoveDevice deletes a paired device entry by id, and also strips it from
// every folder's peers list so a removed device can't leave a dangling
// reference that ResolveFolders would otherwise carry forward silently.
func RemoveDevice(path, deviceID string, logger *slog.Logger) error {
	logger.Info("removing device from config", "path", path, "device_id", deviceID)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return err
	}

	idx := -1

	for i, d := range cfg.Devices {
		if d.ID == deviceID {
			idx = i

			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("device %q not found in config", deviceID)
	}

	cfg.Devices = append(cfg.Devices[:idx], cfg.Devices[idx+1:]...)

	for i := range cfg.Folders {
		cfg.Folders[i].Peers = removeString(cfg.Folders[i].Peers, deviceID)
	}

	return writeConfig(path, cfg)
}

// SetFolderPaused toggles a folder's paused flag. Used by the pause/resume
// control-surface commands.
func SetFolderPaused(path, folderID string, paused bool, logger *slog.Logger) error {
	logger.Info("setting folder paused state", "path", path, "folder_id", folderID, "paused", paused)

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return err
	}

	found := false

	for i := range cfg.Folders {
		if cfg.Folders[i].ID == folderID {
			cfg.Folders[i].Paused = paused
			found = true

			break
		}
	}

	if !found {
		return fmt.Errorf("folder %q not found in config", folderID)
	}

	return writeConfig(path, cfg)
}

func removeString(ss []string, target string) []string {
	out := ss[:0]

	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}

	return out
}

func writeConfig(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("refusing to write invalid config: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return atomicWriteFile(path, buf.Bytes())
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash. Parent directories are created
// as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	// Flush data to disk before rename. Without fsync, a power loss after
	// rename could leave the file empty (rename is metadata-only on POSIX).
	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
