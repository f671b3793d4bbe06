// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/keystore"
)

// Config is the master configuration.
type Config struct {
	// Device identifies the instrument whose archives are written.
	Device DeviceConfig `yaml:"device"`

	// Keys locates the key stores and optional seed overrides.
	Keys KeysConfig `yaml:"keys"`

	// Archive holds defaults for new archives.
	Archive ArchiveConfig `yaml:"archive"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log"`
}

// DeviceConfig identifies the instrument.
type DeviceConfig struct {
	// ID is the serial number embedded in archive names and mixed into
	// key provisioning.
	ID string `yaml:"id"`

	// Product is the first field of archive names.
	Product string `yaml:"product"`
}

// KeysConfig locates the two key stores.
type KeysConfig struct {
	// LocalStore is the 64-byte key store on the device.
	// Default: ${HOME}/.local/state/xfer/device.keys
	LocalStore string `yaml:"local_store"`

	// MediaStore is the 4-byte index on the removable medium.
	// Default: ${XFER_MEDIA:-/media/usb}/xfer.index
	MediaStore string `yaml:"media_store"`

	// Seeds overrides the built-in provisioning seeds. Each value is
	// hex; empty values keep the built-in seed.
	Seeds SeedsConfig `yaml:"seeds"`
}

// SeedsConfig holds hex-encoded provisioning seeds.
type SeedsConfig struct {
	Leica  string `yaml:"leica"`
	Viewer string `yaml:"viewer"`
	S0     string `yaml:"s0"`
	S1     string `yaml:"s1"`
}

// ArchiveConfig holds defaults for new archives.
type ArchiveConfig struct {
	// Kind is the second field of archive names.
	// Default: ServiceData
	Kind string `yaml:"kind"`

	// Encrypt enables the entry cipher by default.
	Encrypt bool `yaml:"encrypt"`

	// Codec is "zstd" or "lz4". Default: zstd
	Codec string `yaml:"codec"`

	// FileVersion is stored in every header. Default: 1
	FileVersion uint16 `yaml:"file_version"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the file itself is
// required.
func Default() *Config {
	return &Config{
		Keys: KeysConfig{
			LocalStore: "${HOME}/.local/state/xfer/device.keys",
			MediaStore: "${XFER_MEDIA:-/media/usb}/xfer.index",
		},
		Archive: ArchiveConfig{
			Kind:        "ServiceData",
			Codec:       "zstd",
			FileVersion: 1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads configuration from the XFER_CONFIG environment variable.
//
// There are no fallbacks or defaults: if XFER_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("XFER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("XFER_CONFIG environment variable not set; " +
			"set it to the path of your xfer.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Keys.LocalStore = filepath.Clean(expandVars(c.Keys.LocalStore, vars))
	c.Keys.MediaStore = filepath.Clean(expandVars(c.Keys.MediaStore, vars))
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.ID == "" {
		errs = append(errs, fmt.Errorf("device.id is required"))
	} else if strings.ContainsAny(c.Device.ID, "_./\\") {
		errs = append(errs, fmt.Errorf("device.id %q must not contain '_', '.', or path separators", c.Device.ID))
	}
	if c.Device.Product == "" {
		errs = append(errs, fmt.Errorf("device.product is required"))
	}
	if c.Keys.LocalStore == "" || c.Keys.LocalStore == "." {
		errs = append(errs, fmt.Errorf("keys.local_store is required"))
	}
	if c.Keys.MediaStore == "" || c.Keys.MediaStore == "." {
		errs = append(errs, fmt.Errorf("keys.media_store is required"))
	}
	if c.Archive.Kind == "" {
		errs = append(errs, fmt.Errorf("archive.kind is required"))
	}
	if _, err := chunkstream.ParseCodec(c.Archive.Codec); err != nil {
		errs = append(errs, fmt.Errorf("archive.codec: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Seeds(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Seeds returns the provisioning seeds: the built-in defaults with any
// configured overrides applied.
func (c *Config) Seeds() (keystore.Seeds, error) {
	seeds := keystore.DefaultSeeds()
	overrides := []struct {
		name   string
		value  string
		target *[]byte
	}{
		{"keys.seeds.leica", c.Keys.Seeds.Leica, &seeds.Leica},
		{"keys.seeds.viewer", c.Keys.Seeds.Viewer, &seeds.Viewer},
		{"keys.seeds.s0", c.Keys.Seeds.S0, &seeds.S0},
		{"keys.seeds.s1", c.Keys.Seeds.S1, &seeds.S1},
	}
	for _, override := range overrides {
		if override.value == "" {
			continue
		}
		decoded, err := hex.DecodeString(override.value)
		if err != nil {
			return keystore.Seeds{}, fmt.Errorf("%s: %w", override.name, err)
		}
		*override.target = decoded
	}
	if err := seeds.Validate(); err != nil {
		return keystore.Seeds{}, err
	}
	return seeds, nil
}

// LocalStore returns the configured device key store.
func (c *Config) LocalStore() keystore.FileLocalStore {
	return keystore.FileLocalStore{Path: c.Keys.LocalStore}
}

// MediaStore returns the configured removable-media index store.
func (c *Config) MediaStore() keystore.FileMediaStore {
	return keystore.FileMediaStore{Path: c.Keys.MediaStore}
}

// EnsurePaths creates the parent directories of both key stores.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Keys.LocalStore, c.Keys.MediaStore} {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}
	return nil
}
