// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"

	"github.com/labinstrument/xfer/lib/fault"
)

// Lease grants the right to hold the one live session manager of a
// process. The process owner creates a single Lease at startup and
// passes it to every archive operation; a Manager holds it from
// construction until Close.
//
// A Lease is safe for concurrent use. A second acquisition while the
// lease is held fails immediately with fault.SessionActive rather than
// waiting: two overlapping archive operations on one device would race
// on the hash chain.
type Lease struct {
	mu     sync.Mutex
	holder string
}

// NewLease returns an unheld lease.
func NewLease() *Lease {
	return &Lease{}
}

// Held reports whether a session currently holds the lease.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder != ""
}

func (l *Lease) acquire(holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return fault.New(fault.SessionActive, "session.New", "session already active for %s", l.holder)
	}
	l.holder = holder
	return nil
}

func (l *Lease) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = ""
}
