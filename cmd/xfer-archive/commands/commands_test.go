// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labinstrument/xfer/cmd/xfer-archive/cli"
	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/clock"
	"github.com/labinstrument/xfer/lib/codec"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/session"
)

const testArchiveName = "HistoCore_ServiceData_SN4711_20260314T092653.lxa"

type fixture struct {
	root   string
	config string
	media  string
	stdout bytes.Buffer
	env    *environment
}

func newFixture(t *testing.T, extraConfig string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:   root,
		config: filepath.Join(root, "xfer.yaml"),
		media:  filepath.Join(root, "media"),
	}
	content := `
device:
  id: SN4711
  product: HistoCore
keys:
  local_store: ` + filepath.Join(root, "state", "device.keys") + `
  media_store: ` + filepath.Join(f.media, "xfer.index") + `
` + extraConfig
	if err := os.WriteFile(f.config, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	f.env = &environment{
		lease:  session.NewLease(),
		clock:  clock.Fake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)),
		stdout: &f.stdout,
		newLogger: func(slog.Level) *slog.Logger {
			return slog.New(slog.DiscardHandler)
		},
	}
	return f
}

// source writes a source file and returns its path.
func (f *fixture) source(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, "src", name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes one command line and returns what it wrote to stdout.
func (f *fixture) run(args ...string) (string, error) {
	f.stdout.Reset()
	root := newRoot(f.env)
	root.HelpOutput = &bytes.Buffer{}
	err := root.Execute(args)
	return f.stdout.String(), err
}

func (f *fixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := f.run(args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return output
}

// pack writes an archive of the given sources and returns its path.
func (f *fixture) pack(t *testing.T, flags []string, sources ...string) string {
	t.Helper()
	args := append([]string{"pack", "--config", f.config, "--dir", f.media}, flags...)
	output := f.mustRun(t, append(args, sources...)...)
	return strings.TrimSpace(output)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	f := newFixture(t, "")
	first := f.source(t, "run.log", "cycle 1 complete\n")
	second := f.source(t, "settings.xml", "<settings/>")

	archivePath := f.pack(t, nil, first, second)
	if want := filepath.Join(f.media, testArchiveName); archivePath != want {
		t.Fatalf("pack printed %q, want %q", archivePath, want)
	}

	out := filepath.Join(f.root, "out")
	output := f.mustRun(t, "unpack", "--config", f.config, "--out", out, archivePath)
	if !strings.Contains(output, "extracted 2 of 2 entries") {
		t.Errorf("unpack output = %q", output)
	}
	if got := readFile(t, filepath.Join(out, "run.log")); got != "cycle 1 complete\n" {
		t.Errorf("run.log = %q", got)
	}
	if got := readFile(t, filepath.Join(out, "settings.xml")); got != "<settings/>" {
		t.Errorf("settings.xml = %q", got)
	}
}

func TestUnpackSelectionWithPrefix(t *testing.T) {
	f := newFixture(t, "")
	archivePath := f.pack(t, nil,
		f.source(t, "a.xml", "a"),
		f.source(t, "b.log", "b"),
		f.source(t, "c.log", "c"))

	out := filepath.Join(f.root, "out")
	output := f.mustRun(t, "unpack", "--config", f.config, "--only", "*.log", "--only", "a.xml",
		"--prefix", "case", "--out", out, archivePath)
	if !strings.Contains(output, "extracted 3 of 3") {
		t.Errorf("unpack output = %q", output)
	}
	for _, name := range []string{"a.xml", "b.log", "c.log"} {
		if _, err := os.Stat(filepath.Join(out, "case", name)); err != nil {
			t.Errorf("%s not extracted under prefix: %v", name, err)
		}
	}

	out = filepath.Join(f.root, "only-b")
	output = f.mustRun(t, "unpack", "--config", f.config, "--only", "b.log", "--out", out, archivePath)
	if !strings.Contains(output, "extracted 1 of 3") {
		t.Errorf("unpack output = %q", output)
	}
	if _, err := os.Stat(filepath.Join(out, "a.xml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("a.xml extracted despite --only b.log")
	}
}

func TestUnpackRequiresOut(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.run("unpack", "--config", f.config, "archive.lxa"); err == nil || !strings.Contains(err.Error(), "--out") {
		t.Errorf("unpack without --out error = %v", err)
	}
}

func TestListFormats(t *testing.T) {
	f := newFixture(t, "")
	archivePath := f.pack(t, nil, f.source(t, "run.log", "cycle"), f.source(t, "empty.dat", ""))

	output := f.mustRun(t, "list", "--config", f.config, "--color", "never", archivePath)
	for _, want := range []string{
		testArchiveName,
		"SN4711",
		"zstd",
		"hash-chain index",
		"Import",
		"run.log",
		archive.DigestOf([]byte("cycle")).String(),
		archive.DigestOf(nil).String(),
	} {
		if !strings.Contains(output, want) {
			t.Errorf("list output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("--color never produced escape sequences:\n%q", output)
	}

	styled := f.mustRun(t, "list", "--config", f.config, "--color", "always", archivePath)
	if !strings.Contains(styled, "\x1b[") {
		t.Errorf("--color always produced no escape sequences")
	}

	encoded := f.mustRun(t, "list", "--config", f.config, "--format", "cbor", archivePath)
	var manifest map[string]any
	if err := codec.Unmarshal([]byte(encoded), &manifest); err != nil {
		t.Fatalf("decoding CBOR manifest: %v", err)
	}
	if manifest["archive"] != testArchiveName {
		t.Errorf("manifest archive = %v", manifest["archive"])
	}
	if entries, ok := manifest["entries"].([]any); !ok || len(entries) != 2 {
		t.Errorf("manifest entries = %#v", manifest["entries"])
	}

	notation := f.mustRun(t, "list", "--config", f.config, "--format", "diag", archivePath)
	if !strings.Contains(notation, `"hash_chain_index"`) {
		t.Errorf("diagnostic notation = %q", notation)
	}

	if _, err := f.run("list", "--config", f.config, "--format", "xml", archivePath); err == nil {
		t.Error("list accepted --format xml")
	}
}

func TestServiceToolReadsWithSeeds(t *testing.T) {
	f := newFixture(t, "")
	archivePath := f.pack(t, []string{"--encrypt"}, f.source(t, "run.log", "service data"))

	// The device's Leica key has moved past the archive's index.
	_, err := f.run("list", "--config", f.config, "--role", "Leica", archivePath)
	if !errors.Is(err, fault.Integrity) {
		t.Fatalf("device-local Leica list error = %v, want integrity", err)
	}
	if code := cli.ExitCodeFor(err); code != cli.ExitIntegrity {
		t.Errorf("exit code = %d, want %d", code, cli.ExitIntegrity)
	}

	for _, role := range []string{"Leica", "Viewer", "Import"} {
		out := filepath.Join(f.root, "out-"+role)
		f.mustRun(t, "unpack", "--config", f.config, "--role", role, "--keys-from-seeds", "--out", out, archivePath)
		if got := readFile(t, filepath.Join(out, "run.log")); got != "service data" {
			t.Errorf("%s: run.log = %q", role, got)
		}
	}
}

func TestKeysShow(t *testing.T) {
	f := newFixture(t, "")

	output := f.mustRun(t, "keys", "show", "--config", f.config)
	if !strings.Contains(output, "not provisioned") || !strings.Contains(output, "absent") {
		t.Errorf("keys show before first write = %q", output)
	}

	f.pack(t, nil, f.source(t, "run.log", "x"))
	f.env.clock.(*clock.FakeClock).Advance(time.Second)
	f.pack(t, nil, f.source(t, "run2.log", "y"))

	output = f.mustRun(t, "keys", "show", "--config", f.config)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("keys show printed %d lines:\n%s", len(lines), output)
	}
	for _, line := range lines[1:] {
		if !strings.HasSuffix(strings.TrimSpace(line), " 2") {
			t.Errorf("store line %q, want index 2", line)
		}
	}
}

func TestKeysEscrowAndSealedUnpack(t *testing.T) {
	f := newFixture(t, "")
	identity := filepath.Join(f.root, "service.age")
	recipient := strings.TrimSpace(f.mustRun(t, "keys", "keygen", "--out", identity))
	if !strings.HasPrefix(recipient, "age1") {
		t.Fatalf("keygen printed %q", recipient)
	}
	info, err := os.Stat(identity)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("identity mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := f.run("keys", "escrow", "--config", f.config, "--recipient", recipient); err == nil {
		t.Error("escrow succeeded before the local store was provisioned")
	}

	archivePath := f.pack(t, nil, f.source(t, "settings.xml", "<settings/>"))
	armored := f.mustRun(t, "keys", "escrow", "--config", f.config, "--recipient", recipient)
	if !strings.HasPrefix(armored, "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Fatalf("escrow output is not armored age:\n%s", armored)
	}
	sealedPath := filepath.Join(f.root, "device.keys.age")
	if err := os.WriteFile(sealedPath, []byte(armored), 0600); err != nil {
		t.Fatal(err)
	}

	// The escrowed snapshot is one step past the archive: Import still
	// authenticates it, Viewer no longer does.
	out := filepath.Join(f.root, "out")
	f.mustRun(t, "unpack", "--config", f.config, "--keys-sealed", sealedPath, "--identity", identity, "--out", out, archivePath)
	if got := readFile(t, filepath.Join(out, "settings.xml")); got != "<settings/>" {
		t.Errorf("settings.xml = %q", got)
	}
	_, err = f.run("list", "--config", f.config, "--role", "Viewer", "--keys-sealed", sealedPath, "--identity", identity, archivePath)
	if !errors.Is(err, fault.Integrity) {
		t.Errorf("Viewer with later snapshot error = %v, want integrity", err)
	}

	if _, err := f.run("keys", "escrow", "--config", f.config, "--recipient", "age1notakey"); err == nil {
		t.Error("escrow accepted an invalid recipient")
	}
	if _, err := f.run("list", "--config", f.config, "--keys-sealed", sealedPath, "--keys-from-seeds", "--identity", identity, archivePath); err == nil {
		t.Error("list accepted two key sources")
	}
}

func TestKeysDeriveForArchive(t *testing.T) {
	f := newFixture(t, "")
	identity := filepath.Join(f.root, "service.age")
	recipient := strings.TrimSpace(f.mustRun(t, "keys", "keygen", "--out", identity))

	first := f.pack(t, []string{"--encrypt"}, f.source(t, "run.log", "first"))
	f.env.clock.(*clock.FakeClock).Advance(time.Minute)
	second := f.pack(t, []string{"--encrypt"}, f.source(t, "run.log", "second"))

	// Keys derived for the first archive step forward to open the second.
	armored := f.mustRun(t, "keys", "derive", "--config", f.config, "--archive", first, "--recipient", recipient)
	sealedPath := filepath.Join(f.root, "first.keys.age")
	if err := os.WriteFile(sealedPath, []byte(armored), 0600); err != nil {
		t.Fatal(err)
	}
	for i, archivePath := range []string{first, second} {
		out := filepath.Join(f.root, "out", string(rune('a'+i)))
		f.mustRun(t, "unpack", "--config", f.config, "--role", "Viewer",
			"--keys-sealed", sealedPath, "--identity", identity, "--out", out, archivePath)
		want := []string{"first", "second"}[i]
		if got := readFile(t, filepath.Join(out, "run.log")); got != want {
			t.Errorf("archive %d run.log = %q, want %q", i, got, want)
		}
	}

	armored = f.mustRun(t, "keys", "derive", "--config", f.config, "--index", "1", "--recipient", recipient)
	if err := os.WriteFile(sealedPath, []byte(armored), 0600); err != nil {
		t.Fatal(err)
	}
	f.mustRun(t, "list", "--config", f.config, "--role", "Leica",
		"--keys-sealed", sealedPath, "--identity", identity, second)

	if _, err := f.run("keys", "derive", "--config", f.config, "--archive", first, "--device", "SN1", "--recipient", recipient); err == nil {
		t.Error("derive accepted --archive with --device")
	}
}

func TestPackSkippedSourceExitsPartial(t *testing.T) {
	f := newFixture(t, "")
	missing := filepath.Join(f.root, "src", "missing.log")
	output, err := f.run("pack", "--config", f.config, "--dir", f.media, f.source(t, "run.log", "x"), missing)

	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != cli.ExitPartial {
		t.Fatalf("pack error = %v, want exit code %d", err, cli.ExitPartial)
	}
	if !strings.Contains(output, "skipped: "+missing) {
		t.Errorf("pack output = %q", output)
	}

	_, err = f.run("list", "--config", f.config, filepath.Join(f.media, testArchiveName))
	if !errors.Is(err, fault.CountMismatch) {
		t.Errorf("list of partial archive error = %v, want count_mismatch", err)
	}
}

func TestImplausibleHeaderIndexIsRejected(t *testing.T) {
	f := newFixture(t, "")
	identity := filepath.Join(f.root, "service.age")
	recipient := strings.TrimSpace(f.mustRun(t, "keys", "keygen", "--out", identity))
	archivePath := f.pack(t, []string{"--encrypt"}, f.source(t, "run.log", "x"))

	armored := f.mustRun(t, "keys", "derive", "--config", f.config, "--index", "0", "--recipient", recipient)
	sealedPath := filepath.Join(f.root, "keys.age")
	if err := os.WriteFile(sealedPath, []byte(armored), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	copy(data[10:14], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	if err := os.WriteFile(archivePath, data, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"keys from seeds", []string{"list", "--config", f.config, "--role", "Viewer", "--keys-from-seeds", archivePath}},
		{"sealed keys", []string{"list", "--config", f.config, "--role", "Viewer", "--keys-sealed", sealedPath, "--identity", identity, archivePath}},
		{"derive for archive", []string{"keys", "derive", "--config", f.config, "--archive", archivePath, "--recipient", recipient}},
		{"derive for index", []string{"keys", "derive", "--config", f.config, "--index", "4294967295", "--recipient", recipient}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(tt.args...)
			if !errors.Is(err, fault.InvalidField) {
				t.Fatalf("error = %v, want invalid_field", err)
			}
			if code := cli.ExitCodeFor(err); code != cli.ExitFormat {
				t.Errorf("exit code = %d, want %d", code, cli.ExitFormat)
			}
		})
	}
}

func TestPackOptions(t *testing.T) {
	f := newFixture(t, "archive:\n  codec: lz4\n  encrypt: true\n  file_version: 9\n")
	archivePath := f.pack(t, nil, f.source(t, "run.log", "x"))
	header, err := archive.ReadHeader(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if header.FormatVersion != chunkstream.TagLZ4 || !header.Encrypted || header.FileVersion != 9 {
		t.Errorf("config defaults not applied: %+v", header)
	}

	f.env.clock.(*clock.FakeClock).Advance(time.Second)
	archivePath = f.pack(t, []string{"--codec", "zstd", "--encrypt=false", "--file-version", "3"}, f.source(t, "run.log", "x"))
	header, err = archive.ReadHeader(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if header.FormatVersion != chunkstream.TagZstd || header.Encrypted || header.FileVersion != 3 {
		t.Errorf("flags did not override config: %+v", header)
	}

	f.env.clock.(*clock.FakeClock).Advance(time.Second)
	archivePath = f.pack(t, []string{"--file-version", "0"}, f.source(t, "run.log", "x"))
	header, err = archive.ReadHeader(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if header.FileVersion != 0 {
		t.Errorf("--file-version 0 did not override config: FileVersion = %d", header.FileVersion)
	}
}

func TestPackNameChecks(t *testing.T) {
	f := newFixture(t, "")
	source := f.source(t, "run.log", "x")

	_, err := f.run("pack", "--config", f.config, "--dir", f.media,
		"--name", "HistoCore_ServiceData_SN9999_20260314T092653.lxa", source)
	if !errors.Is(err, fault.InvalidField) {
		t.Errorf("foreign device name error = %v, want invalid_field", err)
	}

	archivePath := f.pack(t, []string{"--name", "HistoCore_Configuration_SN4711_20260101T000000.lxa"}, source)
	if filepath.Base(archivePath) != "HistoCore_Configuration_SN4711_20260101T000000.lxa" {
		t.Errorf("pack wrote %s", archivePath)
	}

	if _, err := f.run("pack", "--config", f.config); err == nil {
		t.Error("pack accepted no files")
	}
}

func TestConfigRequired(t *testing.T) {
	f := newFixture(t, "")
	t.Setenv("XFER_CONFIG", "")
	_, err := f.run("keys", "show")
	if err == nil || !strings.Contains(err.Error(), "XFER_CONFIG") {
		t.Errorf("keys show without config error = %v", err)
	}

	t.Setenv("XFER_CONFIG", f.config)
	if _, err := f.run("keys", "show"); err != nil {
		t.Errorf("keys show with XFER_CONFIG: %v", err)
	}

	invalid := filepath.Join(f.root, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("archive:\n  codec: gzip\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.run("keys", "show", "--config", invalid); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("invalid config error = %v", err)
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	var help bytes.Buffer
	root := newRoot(&environment{})
	root.HelpOutput = &help
	if err := root.Execute([]string{"--help"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"pack", "unpack", "list", "keys", "version"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("root help missing %q", want)
		}
	}
}

func TestSplitSelection(t *testing.T) {
	names, patterns := splitSelection([]string{"settings.xml", "*.log", "report-{a,b}.pdf", "run[12].log"})
	if len(names) != 1 || names[0] != "settings.xml" {
		t.Errorf("names = %v", names)
	}
	if len(patterns) != 3 {
		t.Errorf("patterns = %v", patterns)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t, "")
	output := f.mustRun(t, "version")
	if !strings.Contains(output, "codecs zstd=0 lz4=1") {
		t.Errorf("version output = %q", output)
	}
}
