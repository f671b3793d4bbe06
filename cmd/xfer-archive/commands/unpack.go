// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/archive"
)

type unpackParams struct {
	configPath string
	keys       keyFlags
	only       []string
	prefix     string
	out        string
}

func unpackCommand(env *environment) *cli.Command {
	var params unpackParams

	return &cli.Command{
		Name:    "unpack",
		Aliases: []string{"extract"},
		Summary: "Authenticate an archive and extract its entries",
		Description: `Authenticate an archive with one role's key and extract its entries
into a directory.

Every entry is authenticated, selected or not. Extracted files are
written before their entry's HMAC is checked, so the output directory
must be treated as untrusted if the command fails.

Keys come from the device's own key stores unless --keys-from-seeds or
--keys-sealed is given. On the device only the Import role can
authenticate its own archives; the Leica and Viewer keys have moved on
by the time the write completes.`,
		Usage: "xfer-archive unpack [flags] --out DIR ARCHIVE",
		Examples: []cli.Example{
			{
				Description: "Restore configuration on the instrument",
				Command:     "xfer-archive unpack --out restore /media/usb/HistoCore_Configuration_SN4711_20260314T092653.lxa",
			},
			{
				Description: "Extract only logs as the service tool",
				Command:     "xfer-archive unpack --role Leica --keys-from-seeds --only '*.log' --prefix logs --out case-1182 ARCHIVE",
			},
		},
		Flags: func() *pflag.FlagSet {
			params = unpackParams{}
			flagSet := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
			flagSet.StringVar(&params.configPath, "config", "", "config file (default: $XFER_CONFIG)")
			params.keys.register(flagSet)
			flagSet.StringArrayVar(&params.only, "only", nil, "extract only this entry name or glob pattern (repeatable)")
			flagSet.StringVar(&params.prefix, "prefix", "", "path prefix joined in front of every extracted name")
			flagSet.StringVarP(&params.out, "out", "o", "", "directory entries are extracted into (required)")
			return flagSet
		},
		Run: func(args []string) error {
			return env.runUnpack(params, args)
		},
	}
}

func (env *environment) runUnpack(params unpackParams, args []string) error {
	archivePath, err := requireOne(args, "archive")
	if err != nil {
		return err
	}
	if params.out == "" {
		return fmt.Errorf("--out is required")
	}
	cfg, logger, err := env.loadConfig(params.configPath, "unpack")
	if err != nil {
		return err
	}

	names, patterns := splitSelection(params.only)
	filter, err := archive.NewFilter(names, patterns, params.prefix)
	if err != nil {
		return err
	}
	options, role, err := env.readOptions(cfg, logger, params.keys, archivePath)
	if err != nil {
		return err
	}

	result, err := archive.Read(archive.ReadRequest{
		Path:    archivePath,
		Role:    role,
		Filter:  filter,
		Sink:    archive.DiskSink{Dir: params.out},
		Session: options,
	})
	if err != nil {
		return fmt.Errorf("unpacking %s: %w", archivePath, err)
	}

	fmt.Fprintf(env.stdout, "extracted %d of %d entries to %s\n", result.Extracted, result.Entries, params.out)
	return nil
}
