// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/fault"
)

type packParams struct {
	configPath  string
	name        string
	dir         string
	encrypt     bool
	fileVersion uint16
	codec       string
}

func packCommand(env *environment) *cli.Command {
	var params packParams
	var flagSet *pflag.FlagSet

	return &cli.Command{
		Name:    "pack",
		Summary: "Write an archive from files",
		Description: `Write one archive holding the given files, one entry per file, in
argument order. Entries are stored under their base names, which must
be distinct.

The archive is authenticated with the device's current keys. Once it
is on disk the key hash chain advances on both the device and the
removable medium. A file that cannot be opened is logged and skipped;
the archive is still written but readers will reject its entry count,
and the command exits with status 2.`,
		Usage: "xfer-archive pack [flags] FILE...",
		Examples: []cli.Example{
			{
				Description: "Write an encrypted archive with a generated name",
				Command:     "xfer-archive pack --encrypt --dir /media/usb run.log settings.xml",
			},
			{
				Description: "Use lz4 for faster exports of large logs",
				Command:     "xfer-archive pack --codec lz4 --dir /media/usb /var/log/instrument/*.log",
			},
		},
		Flags: func() *pflag.FlagSet {
			params = packParams{}
			flagSet = pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flagSet.StringVar(&params.configPath, "config", "", "config file (default: $XFER_CONFIG)")
			flagSet.StringVar(&params.name, "name", "", "archive file name (default: Product_Kind_Device_Timestamp.lxa)")
			flagSet.StringVar(&params.dir, "dir", ".", "directory the archive is written to")
			flagSet.BoolVar(&params.encrypt, "encrypt", false, "encrypt entries (default from config)")
			flagSet.Uint16Var(&params.fileVersion, "file-version", 0, "file version stored in the header (default from config)")
			flagSet.StringVar(&params.codec, "codec", "", "chunk codec: zstd or lz4 (default from config)")
			return flagSet
		},
		Run: func(args []string) error {
			return env.runPack(params, flagSet, args)
		},
	}
}

func (env *environment) runPack(params packParams, flagSet *pflag.FlagSet, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	cfg, logger, err := env.loadConfig(params.configPath, "pack")
	if err != nil {
		return err
	}

	name := params.name
	if name == "" {
		name, err = archive.FormatName(env.clock, cfg.Device.Product, cfg.Archive.Kind, cfg.Device.ID)
		if err != nil {
			return err
		}
	} else {
		// Keys are provisioned for the device named in the archive, so
		// it must be this device.
		device, err := archive.DeviceID(name)
		if err != nil {
			return err
		}
		if !bytes.Equal(device, []byte(cfg.Device.ID)) {
			return fault.New(fault.InvalidField, "pack", "archive name %q carries device %q, configured device is %q", name, device, cfg.Device.ID)
		}
	}

	encrypt := cfg.Archive.Encrypt
	if flagSet != nil && flagSet.Changed("encrypt") {
		encrypt = params.encrypt
	}
	fileVersion := cfg.Archive.FileVersion
	if flagSet != nil && flagSet.Changed("file-version") {
		fileVersion = params.fileVersion
	}
	codecName := cfg.Archive.Codec
	if params.codec != "" {
		codecName = params.codec
	}
	codec, err := chunkstream.ParseCodec(codecName)
	if err != nil {
		return err
	}

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	options, err := env.deviceOptions(cfg, logger)
	if err != nil {
		return err
	}

	result, err := archive.Write(archive.WriteRequest{
		Name:        name,
		Dir:         params.dir,
		Paths:       paths,
		FileVersion: fileVersion,
		Encrypt:     encrypt,
		Codec:       codec,
		Session:     options,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(env.stdout, "%s\n", result.Path)
	if len(result.Skipped) > 0 {
		for _, skipped := range result.Skipped {
			fmt.Fprintf(env.stdout, "skipped: %s\n", skipped)
		}
		return &cli.ExitError{Code: cli.ExitPartial}
	}
	return nil
}
