/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import "time"

// KeepAliveTimer is a resettable deadline timer: update(deadline) re-arms
// it (earlier or later than the current deadline), and the timer fires
// once that deadline passes. It backs the H2 dispatcher's keep-alive
// interval and PONG deadline (§4.2, §4.6); the H1 dispatcher and the
// client use connection deadlines and contexts instead.
//
// Precision is millisecond-level; dropping the timer (via Stop) cancels
// it, matching the original source's tokio::time::Sleep-backed design.
type KeepAliveTimer struct {
	timer    *time.Timer
	deadline time.Time
}

// NewKeepAliveTimer creates a timer already armed for deadline.
func NewKeepAliveTimer(deadline time.Time) *KeepAliveTimer {
	k := &KeepAliveTimer{deadline: deadline}
	k.timer = time.NewTimer(time.Until(deadline))
	return k
}

// Update re-arms the timer for a new deadline, which may be earlier or
// later than the one currently armed.
func (k *KeepAliveTimer) Update(deadline time.Time) {
	if !k.timer.Stop() {
		select {
		case <-k.timer.C:
		default:
		}
	}
	k.deadline = deadline
	k.timer.Reset(time.Until(deadline))
}

// Reset re-arms against the stored deadline, useful after a spurious
// wakeup or when the caller wants to restart the same window.
func (k *KeepAliveTimer) Reset() { k.Update(k.deadline) }

// C returns the channel that becomes ready once the deadline passes, for
// use in a select alongside the H2 dispatcher's other event sources (§4.6).
func (k *KeepAliveTimer) C() <-chan time.Time { return k.timer.C }

// Deadline reports the currently armed deadline.
func (k *KeepAliveTimer) Deadline() time.Time { return k.deadline }

// Stop cancels the timer. Safe to call more than once.
func (k *KeepAliveTimer) Stop() { k.timer.Stop() }
