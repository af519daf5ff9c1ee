/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/badu/htx/hdr"
)

// DateTimeHandle is a process-wide cache of the current HTTP-date string
// (RFC 7231 §7.1.1.1), refreshed on a ~1 Hz ticker so hot encoder paths
// can stamp a Date header with a byte-for-byte copy instead of formatting
// time.Now() on every response (§4.4, §9 "Date stamping hot path"). Drift
// up to one second against wall-clock time is acceptable per RFC 7231.
type DateTimeHandle struct {
	current atomic.Pointer[string]
	stop    chan struct{}
	once    sync.Once
}

var (
	globalDateHandle     *DateTimeHandle
	globalDateHandleOnce sync.Once
)

// GlobalDateTimeHandle returns the process-wide DateTimeHandle, starting
// its refresh ticker on first use.
func GlobalDateTimeHandle() *DateTimeHandle {
	globalDateHandleOnce.Do(func() {
		globalDateHandle = NewDateTimeHandle()
		globalDateHandle.Start()
	})
	return globalDateHandle
}

// NewDateTimeHandle builds a handle with an already-formatted snapshot;
// call Start to begin the background ticker.
func NewDateTimeHandle() *DateTimeHandle {
	d := &DateTimeHandle{stop: make(chan struct{})}
	s := time.Now().UTC().Format(hdr.TimeFormat)
	d.current.Store(&s)
	return d
}

// Start launches the background ticker. Safe to call once; subsequent
// calls are no-ops.
func (d *DateTimeHandle) Start() {
	d.once.Do(func() {
		go func() {
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for {
				select {
				case now := <-t.C:
					s := now.UTC().Format(hdr.TimeFormat)
					d.current.Store(&s)
				case <-d.stop:
					return
				}
			}
		}()
	})
}

// Stop tears down the background ticker.
func (d *DateTimeHandle) Stop() { close(d.stop) }

// String returns the cached HTTP-date string, read-only and lock-free
// from the caller's point of view.
func (d *DateTimeHandle) String() string {
	if p := d.current.Load(); p != nil {
		return *p
	}
	return time.Now().UTC().Format(hdr.TimeFormat)
}
