// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the transfer
// archive tooling.
//
// Configuration is loaded from a single file specified by either the
// XFER_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. A bench setup and a field instrument
// differ only in the file they point at.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${XFER_MEDIA}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- device identity, key stores, archive defaults, logging
//   - [Default] -- returns a Config with bench defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
