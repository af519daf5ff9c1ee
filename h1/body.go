/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/badu/htx"
)

const maxChunkLineLength = 4096
const readChunkSize = 32 << 10

// FixedLengthBody reads exactly n bytes off br then yields io.EOF,
// implementing the Content-Length-framed decoder of §4.4 item 3.
type FixedLengthBody struct {
	br   *bufio.Reader
	left int64
}

// NewFixedLengthBody wraps br as a body of exactly n bytes.
func NewFixedLengthBody(br *bufio.Reader, n int64) *FixedLengthBody {
	return &FixedLengthBody{br: br, left: n}
}

func (b *FixedLengthBody) Next(ctx context.Context) ([]byte, error) {
	if b.left <= 0 {
		return nil, io.EOF
	}
	size := int64(readChunkSize)
	if b.left < size {
		size = b.left
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(b.br, buf)
	b.left -= int64(n)
	if err != nil && err != io.EOF {
		return nil, htx.NewError(htx.KindIO, err)
	}
	return buf[:n], nil
}

func (b *FixedLengthBody) SizeHint() htx.SizeHint {
	return htx.SizeHint{Kind: htx.SizeSized, N: uint64(b.left)}
}

// Remaining reports undrained bytes, used by the dispatcher's drain-
// and-discard ceiling check (§4.5 Writing state).
func (b *FixedLengthBody) Remaining() int64 { return b.left }

// EOFBody reads until the underlying connection reaches EOF, used for
// HTTP/1.0-style responses with neither Content-Length nor chunked
// framing (§4.4 item 4, response side).
type EOFBody struct {
	br *bufio.Reader
}

func NewEOFBody(br *bufio.Reader) *EOFBody { return &EOFBody{br: br} }

func (b *EOFBody) Next(ctx context.Context) ([]byte, error) {
	buf := make([]byte, readChunkSize)
	n, err := b.br.Read(buf)
	if err != nil && err != io.EOF {
		return nil, htx.NewError(htx.KindIO, err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	return buf[:n], nil
}

func (b *EOFBody) SizeHint() htx.SizeHint { return htx.SizeHint{Kind: htx.SizeStream} }

// ChunkedBody decodes RFC 7230 §4.1 chunked transfer coding.
type ChunkedBody struct {
	br      *bufio.Reader
	left    int64 // bytes remaining in the current chunk
	sawLast bool
}

func NewChunkedBody(br *bufio.Reader) *ChunkedBody { return &ChunkedBody{br: br} }

func (b *ChunkedBody) SizeHint() htx.SizeHint { return htx.SizeHint{Kind: htx.SizeStream} }

func (b *ChunkedBody) Next(ctx context.Context) ([]byte, error) {
	if b.sawLast {
		return nil, io.EOF
	}
	if b.left == 0 {
		n, err := b.readChunkHeader()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := b.readTrailer(); err != nil {
				return nil, err
			}
			b.sawLast = true
			return nil, io.EOF
		}
		b.left = n
	}
	size := b.left
	if size > readChunkSize {
		size = readChunkSize
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(b.br, buf)
	if err != nil {
		return nil, htx.NewError(htx.KindChunkedDecode, err)
	}
	b.left -= int64(n)
	if b.left == 0 {
		if err := b.discardCRLF(); err != nil {
			return nil, htx.NewError(htx.KindChunkedDecode, err)
		}
	}
	return buf[:n], nil
}

func (b *ChunkedBody) discardCRLF() error {
	cr, err := b.br.ReadByte()
	if err != nil {
		return err
	}
	lf, err := b.br.ReadByte()
	if err != nil {
		return err
	}
	if cr != '\r' || lf != '\n' {
		return errors.New("h1: malformed chunk terminator")
	}
	return nil
}

// readChunkHeader reads a "<hex-size>[;ext]\r\n" line and returns the
// decoded size.
func (b *ChunkedBody) readChunkHeader() (int64, error) {
	line, err := b.br.ReadSlice('\n')
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		} else if err == bufio.ErrBufferFull {
			return 0, htx.NewError(htx.KindChunkedDecode, errors.New("chunk size line too long"))
		}
		return 0, htx.NewError(htx.KindChunkedDecode, err)
	}
	if len(line) > maxChunkLineLength {
		return 0, htx.NewError(htx.KindChunkedDecode, errors.New("chunk size line too long"))
	}
	line = trimTrailingCRLF(line)
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi] // chunk extensions are ignored, not interpreted
	}
	n, err := parseHexUint(line)
	if err != nil {
		return 0, htx.NewError(htx.KindChunkedDecode, err)
	}
	return int64(n), nil
}

// readTrailer discards any trailer headers following the zero-length
// chunk, up to and including the blank line.
func (b *ChunkedBody) readTrailer() error {
	for {
		line, err := b.br.ReadSlice('\n')
		if err != nil {
			return htx.NewError(htx.KindChunkedDecode, err)
		}
		if len(trimTrailingCRLF(line)) == 0 {
			return nil
		}
	}
}

func trimTrailingCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\r' || b[len(b)-1] == '\n') {
		b = b[:len(b)-1]
	}
	return b
}

func parseHexUint(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, errors.New("h1: empty chunk size")
	}
	var n uint64
	for i, c := range v {
		var digit byte
		switch {
		case '0' <= c && c <= '9':
			digit = c - '0'
		case 'a' <= c && c <= 'f':
			digit = c - 'a' + 10
		case 'A' <= c && c <= 'F':
			digit = c - 'A' + 10
		default:
			return 0, errors.New("h1: invalid byte in chunk size")
		}
		if i >= 16 {
			return 0, errors.New("h1: chunk size too large")
		}
		n = n<<4 | uint64(digit)
	}
	return n, nil
}
