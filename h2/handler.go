/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h2

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
)

// requestBody adapts a stream's incoming DATA frames into htx.BodyReader,
// replenishing the peer's receive window as the service consumes chunks so
// request bodies larger than the initial window don't stall.
type requestBody struct {
	d  *Dispatcher
	st *stream
}

func (b *requestBody) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-b.st.bodyCh:
		if !ok {
			return nil, io.EOF
		}
		b.d.sendWindowUpdate(b.st.id, uint32(len(chunk)))
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *requestBody) SizeHint() htx.SizeHint {
	return htx.SizeHint{Kind: htx.SizeStream}
}

// runStreamTask services one HTTP/2 stream end to end: builds the
// request, invokes the service, and writes the response as a HEADERS
// frame followed by capacity-gated DATA frames (§4.6(b), §5).
func (d *Dispatcher) runStreamTask(ctx context.Context, st *stream, doneCh chan<- streamResult) {
	req := &htx.Request{
		RequestHead: htx.RequestHead{
			Method:  st.method,
			URI:     st.path,
			Version: htx.HTTP2,
			Header:  st.reqHeader,
		},
		Body: &requestBody{d: d, st: st},
	}

	if rerr := d.svc.Ready(ctx); rerr != nil {
		d.streamsMu.Lock()
		delete(d.streams, st.id)
		d.streamsMu.Unlock()
		d.writeErrorResponse(st.id)
		doneCh <- streamResult{id: st.id, ctype: htx.KeepAlive, err: rerr}
		return
	}

	resp, err := d.svc.Call(ctx, req)
	d.streamsMu.Lock()
	delete(d.streams, st.id)
	d.streamsMu.Unlock()

	if err != nil {
		d.writeErrorResponse(st.id)
		doneCh <- streamResult{id: st.id, ctype: htx.KeepAlive, err: err}
		return
	}

	ctype := htx.KeepAlive
	if strings.EqualFold(resp.Header.Get(hdr.Connection), "close") {
		ctype = htx.Close
		resp.Header.Del(hdr.Connection)
	}

	if werr := d.writeResponse(st, resp); werr != nil {
		doneCh <- streamResult{id: st.id, ctype: htx.Close, err: werr}
		return
	}
	doneCh <- streamResult{id: st.id, ctype: ctype}
}

func (d *Dispatcher) writeErrorResponse(streamID uint32) {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	enc.WriteField(hpack.HeaderField{Name: ":status", Value: "500"})
	d.writeMu.Lock()
	d.framer.WriteHeaders(http2.HeadersFrameParam{StreamID: streamID, BlockFragment: buf.Bytes(), EndHeaders: true, EndStream: true})
	d.writeMu.Unlock()
}

// writeResponse stamps :status, Content-Length (when Sized), and Date,
// then streams the body as DATA frames no larger than ChunkSize each,
// blocking on the stream's send window until the peer grants capacity
// via WINDOW_UPDATE (§4.6(b) backpressure).
func (d *Dispatcher) writeResponse(st *stream, resp *htx.Response) error {
	hint := resp.Body.SizeHint()

	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	enc.WriteField(hpack.HeaderField{Name: ":status", Value: strconv.Itoa(resp.Status)})
	if hint.Kind == htx.SizeSized {
		resp.Header.Set(hdr.ContentLength, strconv.FormatUint(hint.N, 10))
	}
	if resp.Header.Get(hdr.Date) == "" {
		resp.Header.Set(hdr.Date, htx.GlobalDateTimeHandle().String())
	}
	// HTTP/2 field names must be lowercase on the wire (RFC 7540 §8.1.2);
	// the shared hdr.Header stores them canonicalized.
	for name, values := range resp.Header {
		for _, v := range values {
			enc.WriteField(hpack.HeaderField{Name: strings.ToLower(name), Value: v})
		}
	}

	noBody := hint.Kind == htx.SizeNone || (hint.Kind == htx.SizeSized && hint.N == 0)

	d.writeMu.Lock()
	err := d.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      st.id,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     noBody,
	})
	d.writeMu.Unlock()
	if err != nil || noBody {
		return err
	}

	ctx := context.Background()
	for {
		chunk, berr := resp.Body.Next(ctx)
		if len(chunk) > 0 {
			if sendErr := d.sendData(st, chunk, false); sendErr != nil {
				return sendErr
			}
		}
		if berr != nil {
			if berr == io.EOF {
				return d.sendData(st, nil, true)
			}
			// A genuine mid-stream body failure is not a clean end of
			// stream: abort it with RST_STREAM instead of sending a
			// final DATA frame that would look like a successful close.
			d.resetStream(st.id, http2.ErrCodeInternal)
			return berr
		}
	}
}

// sendWindowUpdate grants the peer n more bytes at both the connection
// and stream level after the service consumed a DATA chunk.
func (d *Dispatcher) sendWindowUpdate(streamID uint32, n uint32) {
	if n == 0 {
		return
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.framer.WriteWindowUpdate(0, n)
	d.framer.WriteWindowUpdate(streamID, n)
}

func (d *Dispatcher) resetStream(streamID uint32, code http2.ErrCode) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.framer.WriteRSTStream(streamID, code)
}

func (d *Dispatcher) sendData(st *stream, data []byte, end bool) error {
	for len(data) > ChunkSize {
		if err := d.sendDataFrame(st, data[:ChunkSize], false); err != nil {
			return err
		}
		data = data[ChunkSize:]
	}
	return d.sendDataFrame(st, data, end)
}

func (d *Dispatcher) sendDataFrame(st *stream, data []byte, end bool) error {
	st.sendWindowMu.Lock()
	for st.sendWindow < int64(len(data)) {
		st.sendWindowC.Wait()
	}
	st.sendWindow -= int64(len(data))
	st.sendWindowMu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.framer.WriteData(st.id, end, data)
}
