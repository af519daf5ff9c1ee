/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import (
	"testing"
	"time"
)

func TestKeepAliveTimerFiresAtDeadline(t *testing.T) {
	k := NewKeepAliveTimer(time.Now().Add(20 * time.Millisecond))
	defer k.Stop()

	select {
	case <-k.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestKeepAliveTimerUpdateExtendsDeadline(t *testing.T) {
	k := NewKeepAliveTimer(time.Now().Add(10 * time.Millisecond))
	defer k.Stop()
	k.Update(time.Now().Add(500 * time.Millisecond))

	select {
	case <-k.C():
		t.Fatal("timer fired at the superseded deadline")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestKeepAliveTimerUpdateCanShortenDeadline(t *testing.T) {
	k := NewKeepAliveTimer(time.Now().Add(time.Hour))
	defer k.Stop()
	k.Update(time.Now().Add(20 * time.Millisecond))

	select {
	case <-k.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire at the shortened deadline")
	}
}
