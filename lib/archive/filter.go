// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"path"

	"github.com/gobwas/glob"

	"github.com/labinstrument/xfer/lib/fault"
)

// Filter selects which entries Read delivers to its sink and where
// they land. Entries that do not match are still read and
// authenticated, only their payload is discarded.
type Filter struct {
	names    map[string]bool
	patterns []glob.Glob
	prefix   string
}

// NewFilter builds a filter matching any of the exact names or glob
// patterns (gobwas/glob syntax, e.g. "*.log" or "report-{a,b}.pdf").
// With no names and no patterns every entry matches. A non-empty
// prefix is joined in front of every delivered name with '/'.
func NewFilter(names, patterns []string, prefix string) (*Filter, error) {
	filter := &Filter{names: make(map[string]bool, len(names)), prefix: prefix}
	for _, name := range names {
		filter.names[name] = true
	}
	for _, pattern := range patterns {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fault.Wrap(fault.InvalidField, "archive.NewFilter", err, "pattern %q", pattern)
		}
		filter.patterns = append(filter.patterns, compiled)
	}
	return filter, nil
}

// Match reports whether the entry name is selected. A nil Filter
// matches everything.
func (f *Filter) Match(name string) bool {
	if f == nil || (len(f.names) == 0 && len(f.patterns) == 0) {
		return true
	}
	if f.names[name] {
		return true
	}
	for _, pattern := range f.patterns {
		if pattern.Match(name) {
			return true
		}
	}
	return false
}

// Target returns the name handed to the sink for a matched entry.
func (f *Filter) Target(name string) string {
	if f == nil || f.prefix == "" {
		return name
	}
	return path.Join(f.prefix, name)
}
