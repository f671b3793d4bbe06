// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// xfer-archive writes and reads instrument transfer archives on the
// bench: pack, unpack, list, and key-store inspection and escrow.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/cmd/xfer-archive/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		// Commands that print their own outcome return an ExitError.
		// Don't print a redundant "error:" line for those.
		var exit *cli.ExitError
		if !errors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(cli.ExitCodeFor(err))
	}
}
