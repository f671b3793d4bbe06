// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall clock.
//
// Archive names embed the time they were written. Code that builds
// names accepts a Clock instead of calling time.Now directly, so tests
// can pin the timestamp:
//
//	c := clock.Fake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
//	name := archive.FormatName(c, "HistoCore", "ServiceData", "SN4711")
package clock
