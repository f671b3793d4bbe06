// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/config"
	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/sealed"
	"github.com/labinstrument/xfer/lib/secret"
	"github.com/labinstrument/xfer/lib/session"
)

// loadConfig loads and validates the configuration named by path, or
// by XFER_CONFIG when path is empty, and builds the command logger at
// the configured level.
func (env *environment) loadConfig(path, command string) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	level, _ := cfg.LogLevel()
	return cfg, env.newLogger(level).With("command", command), nil
}

// deviceOptions returns session options for the device's own key
// stores.
func (env *environment) deviceOptions(cfg *config.Config, logger *slog.Logger) (session.Options, error) {
	seeds, err := cfg.Seeds()
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		Lease:    env.lease,
		DeviceID: []byte(cfg.Device.ID),
		Local:    cfg.LocalStore(),
		Media:    cfg.MediaStore(),
		Seeds:    seeds,
		Logger:   logger,
	}, nil
}

// keyFlags selects where a reading command gets its keys from.
type keyFlags struct {
	role         string
	fromSeeds    bool
	sealedPath   string
	identityPath string
}

func (f *keyFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.role, "role", "Import", "role whose HMAC is verified (Leica, Viewer, Import)")
	flagSet.BoolVar(&f.fromSeeds, "keys-from-seeds", false, "derive keys from the seeds, the device in the archive name, and the header's hash-chain index")
	flagSet.StringVar(&f.sealedPath, "keys-sealed", "", "read keys from age-sealed key material (from 'keys escrow' or 'keys derive')")
	flagSet.StringVar(&f.identityPath, "identity", "-", "age identity file that opens --keys-sealed (- for stdin)")
}

// readOptions returns the session options and role for reading the
// archive at archivePath.
func (env *environment) readOptions(cfg *config.Config, logger *slog.Logger, keys keyFlags, archivePath string) (session.Options, keystore.Role, error) {
	role, err := keystore.ParseRole(keys.role)
	if err != nil {
		return session.Options{}, 0, err
	}
	options, err := env.deviceOptions(cfg, logger)
	if err != nil {
		return session.Options{}, 0, err
	}

	switch {
	case keys.fromSeeds && keys.sealedPath != "":
		return session.Options{}, 0, fmt.Errorf("--keys-from-seeds and --keys-sealed are mutually exclusive")

	case keys.fromSeeds:
		header, err := archive.ReadHeader(archivePath)
		if err != nil {
			return session.Options{}, 0, err
		}
		deviceID, err := archive.DeviceID(filepath.Base(archivePath))
		if err != nil {
			return session.Options{}, 0, err
		}
		material := keystore.DeriveRoleKeys(options.Seeds, deviceID, header.HashChainIndex)
		options.Keys = &material

	case keys.sealedPath != "":
		material, err := openSealed(keys.sealedPath, keys.identityPath)
		if err != nil {
			return session.Options{}, 0, err
		}
		header, err := archive.ReadHeader(archivePath)
		if err != nil {
			return session.Options{}, 0, err
		}
		if material.Index > header.HashChainIndex && role != keystore.Import {
			logger.Warn("sealed key material is past the archive's hash-chain index, only Import can authenticate it",
				"sealed_index", material.Index,
				"hash_chain_index", header.HashChainIndex)
		}
		for material.Index < header.HashChainIndex {
			material.Step()
		}
		options.Keys = &material
	}
	return options, role, nil
}

// openSealed decrypts age-sealed key material.
func openSealed(sealedPath, identityPath string) (keystore.Material, error) {
	data, err := os.ReadFile(sealedPath)
	if err != nil {
		return keystore.Material{}, fmt.Errorf("reading sealed keys: %w", err)
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return keystore.Material{}, fmt.Errorf("reading age identity: %w", err)
	}
	defer identity.Close()

	material, err := sealed.OpenMaterial(data, identity)
	if err != nil {
		return keystore.Material{}, fmt.Errorf("opening %s: %w", sealedPath, err)
	}
	return material, nil
}

// splitSelection separates --only values into exact names and glob
// patterns.
func splitSelection(values []string) (names, patterns []string) {
	for _, value := range values {
		if strings.ContainsAny(value, "*?[{") {
			patterns = append(patterns, value)
		} else {
			names = append(names, value)
		}
	}
	return names, patterns
}

// requireOne checks that a command received exactly one positional
// argument.
func requireOne(args []string, what string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one %s, got %d arguments", what, len(args))
	}
	return args[0], nil
}
