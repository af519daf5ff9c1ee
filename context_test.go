/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import "testing"

func TestConnectionContextResetClearsFlagsAndKeepAlive(t *testing.T) {
	ctx := NewConnectionContext(NewDateTimeHandle())
	ctx.SetExpectHeader()
	ctx.SetConnectMethod()
	ctx.SetConnectionType(Close)

	ctx.Reset()

	if ctx.ConnectionType() != KeepAlive {
		t.Fatalf("ctype = %v, want KeepAlive", ctx.ConnectionType())
	}
	if ctx.IsExpectHeader() {
		t.Fatal("EXPECT flag should be cleared after reset")
	}
	if ctx.IsConnectMethod() {
		t.Fatal("CONNECT flag should be cleared after reset")
	}
}

func TestConnectionContextUpgradeNeverDowngrades(t *testing.T) {
	ctx := NewConnectionContext(NewDateTimeHandle())
	ctx.SetConnectionType(Upgrade)
	ctx.SetForceCloseOnNonEOF()
	if ctx.ConnectionType() != Upgrade {
		t.Fatalf("ctype = %v, want Upgrade to survive SetForceCloseOnNonEOF", ctx.ConnectionType())
	}
}

func TestConnectionContextHeaderHandoff(t *testing.T) {
	ctx := NewConnectionContext(NewDateTimeHandle())
	h := ctx.TakeHeaders()
	h.Set("X-Test", "1")
	h.Reset()
	ctx.ReplaceHeaders(h)

	h2 := ctx.TakeHeaders()
	if len(h2) != 0 {
		t.Fatalf("expected recycled header map to be empty, got %v", h2)
	}
}

func TestApplyVersionAndConnectionHeaderHTTP10(t *testing.T) {
	ctx := NewConnectionContext(NewDateTimeHandle())
	ctx.ApplyVersionAndConnectionHeader(0, "", false)
	if ctx.ConnectionType() != Close {
		t.Fatalf("HTTP/1.0 without keep-alive should close, got %v", ctx.ConnectionType())
	}

	ctx.ApplyVersionAndConnectionHeader(0, "keep-alive", false)
	if ctx.ConnectionType() != KeepAlive {
		t.Fatalf("HTTP/1.0 with keep-alive should stay alive, got %v", ctx.ConnectionType())
	}
}

func TestApplyVersionAndConnectionHeaderHTTP11(t *testing.T) {
	ctx := NewConnectionContext(NewDateTimeHandle())
	ctx.ApplyVersionAndConnectionHeader(1, "close", false)
	if ctx.ConnectionType() != Close {
		t.Fatalf("Connection: close should close, got %v", ctx.ConnectionType())
	}

	ctx.ApplyVersionAndConnectionHeader(1, "", false)
	if ctx.ConnectionType() != KeepAlive {
		t.Fatalf("default HTTP/1.1 should stay alive, got %v", ctx.ConnectionType())
	}

	ctx.ApplyVersionAndConnectionHeader(1, "upgrade", true)
	if ctx.ConnectionType() != Upgrade {
		t.Fatalf("Upgrade header + Connection: upgrade should upgrade, got %v", ctx.ConnectionType())
	}
}
