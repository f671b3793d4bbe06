// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/labinstrument/xfer/lib/archive"
	"github.com/labinstrument/xfer/lib/chunkstream"
)

// These variables are set via -ldflags at build time.
var (
	// Version is the semantic version. Set manually for releases.
	Version = "0.1.0-dev"

	// GitCommit is the short git SHA of the build.
	GitCommit = ""

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Commit returns the injected commit, falling back to the VCS revision
// in the build info. A modified working tree is marked "-dirty".
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return commitFromSettings(info.Settings)
}

func commitFromSettings(settings []debug.BuildSetting) string {
	revision, dirty := "", false
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return "unknown"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit(), BuildTime)
}

// Full returns Info plus the Go version, platform, and supported
// archive formats.
func Full() string {
	codecs := make([]string, 0, 2)
	for _, codec := range []chunkstream.Codec{chunkstream.Zstd, chunkstream.LZ4} {
		codecs = append(codecs, fmt.Sprintf("%s=%d", chunkstream.CodecName(codec), codec.Tag()))
	}
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s\n  Archive: magic %#08x, key version %d, codecs %s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH,
		archive.HeaderMagic, archive.KeyVersion, strings.Join(codecs, " "))
}
