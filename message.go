/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import (
	"context"
	"io"

	"github.com/badu/htx/hdr"
)

// SizeHintKind classifies a body's declared length (§3).
type SizeHintKind int

const (
	SizeNone   SizeHintKind = iota // no body at all
	SizeSized                      // exactly N bytes
	SizeStream                     // unknown length, streamed
)

// SizeHint is the classification a body producer reports so encoders can
// pick fixed-length, chunked or EOF-terminated framing.
type SizeHint struct {
	Kind SizeHintKind
	N    uint64
}

func (h SizeHint) String() string {
	switch h.Kind {
	case SizeNone:
		return "none"
	case SizeSized:
		return "sized"
	default:
		return "stream"
	}
}

// BodyReader is a lazy, finite, one-shot sequence of byte chunks. Next
// returns io.EOF once the sequence is exhausted; consumers must not call
// Next again afterward. This is the shared shape behind request and
// response bodies (§3): a preloaded slab, a caller-supplied producer, or a
// protocol-specific decoder with a dispatcher backchannel all implement it.
type BodyReader interface {
	Next(ctx context.Context) ([]byte, error)
	SizeHint() SizeHint
}

// NoBody is the BodyReader for a request/response with no body at all.
var NoBody BodyReader = noBody{}

type noBody struct{}

func (noBody) Next(context.Context) ([]byte, error) { return nil, io.EOF }
func (noBody) SizeHint() SizeHint                   { return SizeHint{Kind: SizeNone} }

// BytesBody wraps a single preloaded slab, yielding it once then EOF.
type BytesBody struct {
	buf  []byte
	done bool
}

// NewBytesBody constructs a one-shot body over a preloaded buffer.
func NewBytesBody(buf []byte) *BytesBody { return &BytesBody{buf: buf} }

func (b *BytesBody) Next(context.Context) ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}
	b.done = true
	if len(b.buf) == 0 {
		return nil, io.EOF
	}
	return b.buf, nil
}

func (b *BytesBody) SizeHint() SizeHint { return SizeHint{Kind: SizeSized, N: uint64(len(b.buf))} }

// StreamBody adapts a caller-supplied chunk-producing function into a
// BodyReader, used for handler-constructed streaming responses.
type StreamBody struct {
	next func(ctx context.Context) ([]byte, error)
	hint SizeHint
}

// NewStreamBody wraps next as a streamed body with the given size hint.
func NewStreamBody(hint SizeHint, next func(ctx context.Context) ([]byte, error)) *StreamBody {
	return &StreamBody{next: next, hint: hint}
}

func (s *StreamBody) Next(ctx context.Context) ([]byte, error) { return s.next(ctx) }
func (s *StreamBody) SizeHint() SizeHint                       { return s.hint }

// DestroyOnDrop is a flag a pooled client connection's checkout token
// carries: once marked, the token's Drop path removes the connection
// from the pool instead of returning it (§3, §4.8, §9).
type DestroyOnDrop struct{ marked bool }

func (d *DestroyOnDrop) Mark()        { d.marked = true }
func (d *DestroyOnDrop) Marked() bool { return d.marked }

// Version is an HTTP protocol version (major.minor for H1, or a bare
// major for H2/H3 where there is no minor component).
type Version struct {
	Major, Minor int
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
	HTTP2  = Version{2, 0}
	HTTP3  = Version{3, 0}
)

func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// RequestHead is method/URI/version/headers/extensions shared by every
// protocol's request representation.
type RequestHead struct {
	Method     string
	URI        string
	Version    Version
	Header     hdr.Header
	Extensions ExtensionBag
}

// Request pairs a head with its body (§3).
type Request struct {
	RequestHead
	Body BodyReader
}

// ResponseHead is status/version/headers/extensions shared by every
// protocol's response representation.
type ResponseHead struct {
	Status     int
	Version    Version
	Header     hdr.Header
	Extensions ExtensionBag
}

// Response pairs a head with its body.
type Response struct {
	ResponseHead
	Body BodyReader
}

// NewResponse builds a Response with status and a fresh header map,
// ready for a service to populate before returning it to the dispatcher.
func NewResponse(status int, body BodyReader) *Response {
	if body == nil {
		body = NoBody
	}
	return &Response{
		ResponseHead: ResponseHead{Status: status, Header: make(hdr.Header)},
		Body:         body,
	}
}
