// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the xfer-archive command tree.
type Command struct {
	// Name is the command name as typed (e.g., "keys", "escrow").
	Name string

	// Aliases are alternate names accepted in place of Name. They are
	// listed in help but never suggested.
	Aliases []string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description is the multi-line text of the command's own help.
	Description string

	// Usage is the usage line (e.g., "xfer-archive pack [flags] FILE...").
	// If empty, it is synthesized from the command path.
	Usage string

	// Examples follow the description in help output.
	Examples []Example

	// Flags builds the command's flag set. It is called once per parse
	// and once per help rendering. Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument.
	Subcommands []*Command

	// Run executes the command with the positional args left after
	// flag parsing. With Subcommands set, Run handles the case where
	// no subcommand is named.
	Run func(args []string) error

	// HelpOutput receives help text. Nil means os.Stderr. Subcommands
	// inherit their parent's writer.
	HelpOutput io.Writer

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	// Description explains what the example does.
	Description string
	// Command is the literal command line.
	Command string
}

// UsageError reports a command line that could not be dispatched or
// parsed. It exits with [ExitUsage].
type UsageError struct {
	// Message describes the problem.
	Message string
	// Command is the full path of the command that rejected the line.
	Command string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s\n\nRun '%s --help' for usage.", e.Message, e.Command)
}

// ExitCode returns [ExitUsage].
func (e *UsageError) ExitCode() int {
	return ExitUsage
}

func (c *Command) usageError(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...), Command: c.fullName()}
}

// Execute parses args and runs the command or the subcommand they name.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		return c.help(args[1:])
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, err := c.subcommand(args[0])
		if err != nil {
			return err
		}
		return sub.Execute(args[1:])
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(c.helpOutput())
		if len(args) == 0 {
			return c.usageError("subcommand required")
		}
		return c.usageError("subcommand required (got flag %q)", args[0])
	}

	args, done, err := c.parseFlags(args)
	if done || err != nil {
		return err
	}
	if c.Run == nil {
		c.PrintHelp(c.helpOutput())
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.Run(args)
}

// subcommand resolves name against Name and Aliases of the direct
// subcommands and links the match to c.
func (c *Command) subcommand(name string) (*Command, error) {
	for _, sub := range c.Subcommands {
		if sub.Name == name || slices.Contains(sub.Aliases, name) {
			sub.parent = c
			return sub, nil
		}
	}
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return nil, c.usageError("unknown command %q (did you mean %q?)", name, suggestion)
	}
	return nil, c.usageError("unknown command %q", name)
}

// help prints the help of the command named by path below c, so that
// "xfer-archive help keys derive" matches "xfer-archive keys derive --help".
func (c *Command) help(path []string) error {
	target := c
	for _, name := range path {
		if len(target.Subcommands) == 0 || strings.HasPrefix(name, "-") {
			break
		}
		sub, err := target.subcommand(name)
		if err != nil {
			return err
		}
		target = sub
	}
	target.PrintHelp(target.helpOutput())
	return nil
}

// parseFlags parses args against the command's flag set and returns
// the positional remainder. done is set when --help was handled.
func (c *Command) parseFlags(args []string) (rest []string, done bool, err error) {
	if c.Flags == nil {
		return args, false, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)

	err = flagSet.Parse(args)
	switch {
	case err == nil:
		return flagSet.Args(), false, nil
	case errors.Is(err, pflag.ErrHelp):
		c.PrintHelp(c.helpOutput())
		return nil, true, nil
	}

	message := err.Error()
	if strings.Contains(message, "unknown flag") || strings.Contains(message, "unknown shorthand flag") {
		// A failed parse leaves the set half-populated; suggest from a fresh one.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			return nil, false, c.usageError("%s (did you mean %s?)", message, suggestion)
		}
	}
	return nil, false, c.usageError("%s", message)
}

// PrintHelp writes structured help output to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if c.Description != "" {
		fmt.Fprintf(w, "%s\n\n", c.Description)
	} else if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	if c.Usage != "" {
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	} else if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", name)
	} else {
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			names := sub.Name
			if len(sub.Aliases) > 0 {
				names += " (" + strings.Join(sub.Aliases, ", ") + ")"
			}
			fmt.Fprintf(tw, "  %s\t%s\n", names, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		if usage := flagSet.FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// fullName returns the complete command path (e.g., "xfer-archive keys show").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *Command) helpOutput() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.HelpOutput != nil {
			return command.HelpOutput
		}
	}
	return os.Stderr
}

// isHelpFlag reports whether arg asks for help.
func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
