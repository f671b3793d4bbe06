// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/sealed"
)

func keysCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Inspect, escrow, and derive archive keys",
		Description: `Inspect the device's key stores and hand key material to external
tools. Key bytes are never printed: material leaves the device only
sealed to age recipients.`,
		Subcommands: []*cli.Command{
			keysShowCommand(env),
			keysEscrowCommand(env),
			keysDeriveCommand(env),
			keysKeygenCommand(env),
		},
	}
}

func keysShowCommand(env *environment) *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "show",
		Summary: "Print the hash-chain index held by each key store",
		Description: `Print the hash-chain index held by the device-local key store and by
the removable medium. The two agree in steady state; a difference
means the next write will reconcile them.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keys show", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (default: $XFER_CONFIG)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, _, err := env.loadConfig(configPath, "keys/show")
			if err != nil {
				return err
			}

			local := cfg.LocalStore()
			localIndex := "not provisioned"
			if present, err := storeExists(local.Path); err != nil {
				return err
			} else if present {
				material, err := local.Load()
				if err != nil {
					return err
				}
				localIndex = fmt.Sprint(material.Index)
			}

			media := cfg.MediaStore()
			mediaIndex := "absent"
			if present, err := storeExists(media.Path); err != nil {
				return err
			} else if present {
				index, err := media.LoadIndex()
				if err != nil {
					return err
				}
				mediaIndex = fmt.Sprint(index)
			}

			table(env.stdout, [][]string{
				{"device", cfg.Device.ID},
				{"local store", local.Path, localIndex},
				{"media store", media.Path, mediaIndex},
			})
			return nil
		},
	}
}

func keysEscrowCommand(env *environment) *cli.Command {
	var configPath string
	var recipients []string

	return &cli.Command{
		Name:    "escrow",
		Summary: "Seal the device's key material to age recipients",
		Description: `Write the device's current key material, sealed to one or more age
recipients, to stdout as armored age output. The holder of a matching
identity can read this device's archives with 'unpack --keys-sealed'.

Sealed material is a snapshot: it authenticates archives written at or
after its hash-chain index.`,
		Usage: "xfer-archive keys escrow --recipient age1... [flags] > device.keys.age",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keys escrow", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (default: $XFER_CONFIG)")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age recipient public key (repeatable, required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if err := checkRecipients(recipients); err != nil {
				return err
			}
			cfg, logger, err := env.loadConfig(configPath, "keys/escrow")
			if err != nil {
				return err
			}

			local := cfg.LocalStore()
			present, err := storeExists(local.Path)
			if err != nil {
				return err
			}
			if !present {
				return fmt.Errorf("local key store %s is not provisioned; write an archive first", local.Path)
			}
			material, err := local.Load()
			if err != nil {
				return err
			}
			armored, err := sealed.SealMaterial(material, recipients)
			if err != nil {
				return err
			}
			if _, err := env.stdout.Write(armored); err != nil {
				return err
			}
			logger.Info("escrowed key material",
				"hash_chain_index", material.Index,
				"recipients", len(recipients))
			return nil
		},
	}
}

func keysDeriveCommand(env *environment) *cli.Command {
	var configPath, device, archivePath string
	var index uint32
	var recipients []string

	return &cli.Command{
		Name:    "derive",
		Summary: "Derive and seal the keys of a device at a hash-chain index",
		Description: `Derive the key material a device holds at a hash-chain index from the
provisioning seeds and seal it to age recipients. This is how the
service tool obtains keys for one customer archive without access to
the seeds.

Give either --archive, which supplies both the device and the index,
or --index with an optional --device (default: the configured device).`,
		Usage: "xfer-archive keys derive (--archive ARCHIVE | --index N [--device ID]) --recipient age1... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keys derive", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (default: $XFER_CONFIG)")
			flagSet.StringVar(&archivePath, "archive", "", "take the device and index from this archive")
			flagSet.StringVar(&device, "device", "", "device identity (default: configured device)")
			flagSet.Uint32Var(&index, "index", 0, "hash-chain index")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age recipient public key (repeatable, required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if err := checkRecipients(recipients); err != nil {
				return err
			}
			cfg, logger, err := env.loadConfig(configPath, "keys/derive")
			if err != nil {
				return err
			}
			seeds, err := cfg.Seeds()
			if err != nil {
				return err
			}

			deviceID := []byte(cfg.Device.ID)
			if device != "" {
				deviceID = []byte(device)
			}
			if archivePath != "" {
				if device != "" {
					return fmt.Errorf("--archive and --device are mutually exclusive")
				}
				header, err := archive.ReadHeader(archivePath)
				if err != nil {
					return err
				}
				deviceID, err = archive.DeviceID(filepath.Base(archivePath))
				if err != nil {
					return err
				}
				index = header.HashChainIndex
			}

			if err := keystore.CheckIndex(index); err != nil {
				return err
			}
			material := keystore.DeriveRoleKeys(seeds, deviceID, index)
			armored, err := sealed.SealMaterial(material, recipients)
			if err != nil {
				return err
			}
			if _, err := env.stdout.Write(armored); err != nil {
				return err
			}
			logger.Info("derived key material",
				"device", string(deviceID),
				"hash_chain_index", index,
				"recipients", len(recipients))
			return nil
		},
	}
}

func keysKeygenCommand(env *environment) *cli.Command {
	var out string

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age identity for receiving sealed keys",
		Description: `Generate an age x25519 identity. The identity is written to --out with
mode 0600 and the recipient public key is printed, ready to pass to
'keys escrow --recipient' or 'keys derive --recipient'.`,
		Usage: "xfer-archive keys keygen --out FILE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keys keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&out, "out", "o", "", "identity file to create (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			file, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
			if err != nil {
				return fmt.Errorf("creating identity file: %w", err)
			}
			_, writeErr := fmt.Fprintf(file, "%s\n", keypair.PrivateKey.Bytes())
			if closeErr := file.Close(); writeErr == nil {
				writeErr = closeErr
			}
			if writeErr != nil {
				os.Remove(out)
				return fmt.Errorf("writing identity file: %w", writeErr)
			}
			fmt.Fprintln(env.stdout, keypair.PublicKey)
			return nil
		},
	}
}

func checkRecipients(recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("at least one --recipient is required")
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}
	return nil
}

func storeExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return true, nil
}
