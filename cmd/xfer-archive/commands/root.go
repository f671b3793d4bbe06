// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the xfer-archive command tree.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/clock"
	"github.com/labinstrument/xfer/lib/session"
)

// environment carries the process-wide dependencies of every command.
type environment struct {
	lease     *session.Lease
	clock     clock.Clock
	stdout    io.Writer
	newLogger func(slog.Level) *slog.Logger
}

// Root returns the xfer-archive command tree wired to the real
// process environment.
func Root() *cli.Command {
	return newRoot(&environment{
		lease:     session.NewLease(),
		clock:     clock.Real(),
		stdout:    os.Stdout,
		newLogger: cli.NewCommandLogger,
	})
}

func newRoot(env *environment) *cli.Command {
	return &cli.Command{
		Name: "xfer-archive",
		Description: `Write and read instrument transfer archives.

Archives carry service data and configuration between an instrument and
its external tools. Every archive is authenticated for three roles
(Leica, Viewer, Import) and may be encrypted. Writing an archive
advances the device's key hash chain.

Configuration is read from the file named by --config or XFER_CONFIG.`,
		Subcommands: []*cli.Command{
			packCommand(env),
			unpackCommand(env),
			listCommand(env),
			keysCommand(env),
			versionCommand(env),
		},
		Examples: []cli.Example{
			{
				Description: "Export service data to removable media",
				Command:     "xfer-archive pack --dir /media/usb run.log settings.xml",
			},
			{
				Description: "Restore configuration on the instrument",
				Command:     "xfer-archive unpack --out /etc/instrument /media/usb/HistoCore_Configuration_SN4711_20260314T092653.lxa",
			},
		},
	}
}
