// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the xfer
// binaries.
//
// Three package-level variables may be injected at build time via
// -ldflags -X: [Version], [GitCommit], and [BuildTime]. When they are
// not injected, the VCS revision recorded by the Go toolchain in the
// binary's build info is used for the commit.
//
// [Info] formats the one-line version, [Full] adds the Go version, the
// platform, and the archive formats this build reads and writes.
package version
