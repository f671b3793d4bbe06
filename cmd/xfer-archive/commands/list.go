// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/codec"
)

type listParams struct {
	configPath string
	keys       keyFlags
	only       []string
	format     string
	color      string
}

func listCommand(env *environment) *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "Authenticate an archive and list its entries",
		Description: `Authenticate an archive and print its manifest: the header fields and
the name, size, and BLAKE3 digest of every entry. Nothing is extracted.

--format cbor writes the manifest as deterministic CBOR for the
service tool; --format diag prints the same bytes in CBOR diagnostic
notation.`,
		Usage: "xfer-archive list [flags] ARCHIVE",
		Examples: []cli.Example{
			{
				Description: "Check an archive the instrument wrote",
				Command:     "xfer-archive list /media/usb/HistoCore_ServiceData_SN4711_20260314T092653.lxa",
			},
			{
				Description: "Hand a manifest to the service tool",
				Command:     "xfer-archive list --role Leica --keys-from-seeds --format cbor ARCHIVE > manifest.cbor",
			},
		},
		Flags: func() *pflag.FlagSet {
			params = listParams{}
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&params.configPath, "config", "", "config file (default: $XFER_CONFIG)")
			params.keys.register(flagSet)
			flagSet.StringArrayVar(&params.only, "only", nil, "list only this entry name or glob pattern (repeatable)")
			flagSet.StringVar(&params.format, "format", "text", "output format: text, cbor, or diag")
			flagSet.StringVar(&params.color, "color", "auto", "colorize text output: auto, always, or never")
			return flagSet
		},
		Run: func(args []string) error {
			return env.runList(params, args)
		},
	}
}

func (env *environment) runList(params listParams, args []string) error {
	archivePath, err := requireOne(args, "archive")
	if err != nil {
		return err
	}
	switch params.format {
	case "text", "cbor", "diag":
	default:
		return fmt.Errorf("--format must be text, cbor, or diag (got %q)", params.format)
	}
	cfg, logger, err := env.loadConfig(params.configPath, "list")
	if err != nil {
		return err
	}

	names, patterns := splitSelection(params.only)
	filter, err := archive.NewFilter(names, patterns, "")
	if err != nil {
		return err
	}
	options, role, err := env.readOptions(cfg, logger, params.keys, archivePath)
	if err != nil {
		return err
	}

	manifest, err := archive.Inspect(archive.ReadRequest{
		Path:    archivePath,
		Role:    role,
		Filter:  filter,
		Session: options,
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", archivePath, err)
	}

	switch params.format {
	case "cbor":
		data, err := manifest.MarshalCBOR()
		if err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		_, err = env.stdout.Write(data)
		return err
	case "diag":
		data, err := manifest.MarshalCBOR()
		if err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		notation, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("diagnosing manifest: %w", err)
		}
		fmt.Fprintln(env.stdout, notation)
		return nil
	}

	styles, err := newPalette(env.stdout, params.color)
	if err != nil {
		return err
	}
	encrypted := "no"
	if manifest.Encrypted {
		encrypted = "yes"
	}
	fmt.Fprintln(env.stdout, styles.heading.Render(manifest.Archive))
	table(env.stdout, [][]string{
		{styles.label.Render("  device"), manifest.Device},
		{styles.label.Render("  file version"), strconv.Itoa(int(manifest.FileVersion))},
		{styles.label.Render("  codec"), manifest.Codec},
		{styles.label.Render("  encrypted"), encrypted},
		{styles.label.Render("  hash-chain index"), strconv.FormatUint(uint64(manifest.HashChainIndex), 10)},
		{styles.label.Render("  authenticated"), styles.good.Render(role.String())},
	})
	fmt.Fprintln(env.stdout)

	rows := [][]string{{
		styles.heading.Render("NAME"),
		styles.heading.Render("SIZE"),
		styles.heading.Render("BLAKE3"),
	}}
	for _, entry := range manifest.Entries {
		rows = append(rows, []string{
			entry.Name,
			strconv.FormatUint(uint64(entry.Size), 10),
			styles.digest.Render(entry.Digest.String()),
		})
	}
	table(env.stdout, rows)
	return nil
}
