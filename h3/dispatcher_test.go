/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/badu/htx"
	"github.com/badu/htx/internal/telemetry"
)

func TestServiceHandlerServesResponse(t *testing.T) {
	svc := htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		resp := htx.NewResponse(200, htx.NewBytesBody([]byte("hi "+req.Method)))
		resp.Header.Set("X-Test", "1")
		return resp, nil
	})

	h := &serviceHandler{svc: svc, tel: telemetry.Default()}
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hi GET" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Test") != "1" {
		t.Fatalf("missing X-Test header")
	}
}

func TestServiceHandlerMapsErrorToInternalServerError(t *testing.T) {
	svc := htx.ServiceFunc(func(ctx context.Context, req *htx.Request) (*htx.Response, error) {
		return nil, htx.NewError(htx.KindService, errBoom{})
	})

	h := &serviceHandler{svc: svc, tel: telemetry.Default()}
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestServiceHandlerShedsLoadWhenNotReady(t *testing.T) {
	h := &serviceHandler{svc: notReadyService{}, tel: telemetry.Default()}
	req := httptest.NewRequest(http.MethodGet, "/busy", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503 when service is not ready", rec.Code)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// notReadyService always refuses readiness and must never be called.
type notReadyService struct{}

func (notReadyService) Ready(context.Context) error { return errBoom{} }

func (notReadyService) Call(context.Context, *htx.Request) (*htx.Response, error) {
	panic("Call must not run when Ready fails")
}
