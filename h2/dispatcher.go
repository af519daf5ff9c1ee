/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package h2 implements the HTTP/2 per-connection dispatcher (§4.6): a
// multiplexed scheduler pairing an accept loop with an in-flight
// stream-task queue and a keep-alive/ping-pong heartbeat, built on
// golang.org/x/net/http2's Framer and hpack codec for wire framing while
// the scheduling/3-way-select logic is bespoke, grounded in
// http/src/h2/proto/dispatcher.rs.
package h2

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
	"github.com/badu/htx/internal/telemetry"
)

const (
	// ChunkSize is the maximum size of an H2 DATA frame payload the
	// response-body encoder sends per send_data call (§4.6, §5 backpressure).
	ChunkSize = 16 << 10

	defaultInitialWindow = 65535
)

const preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Config bounds the H2 dispatcher's keep-alive cadence (§4.6, §6).
type Config struct {
	KeepAliveInterval time.Duration // ka_dur: PING cadence when idle
	HandshakeTimeout  time.Duration
	MaxHeaderListSize uint32
}

func (c Config) withDefaults() Config {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.MaxHeaderListSize <= 0 {
		c.MaxHeaderListSize = 16 << 10
	}
	return c
}

// Dispatcher runs the three concurrent activities of §4.6 over one H2
// connection: the accept loop (new HEADERS frames become stream tasks),
// the in-flight queue (unordered completions), and the ping-pong
// heartbeat, fairly selected so neither accept nor completions starve
// the other and the heartbeat is observed within one loop iteration of
// its deadline.
type Dispatcher struct {
	id     string
	conn   net.Conn
	framer *http2.Framer
	svc    htx.Service
	cfg    Config
	tel    *telemetry.Hook

	writeMu sync.Mutex

	streamsMu sync.Mutex
	streams   map[uint32]*stream

	pongCh chan struct{}
}

// NewDispatcher constructs a Dispatcher over conn; conn must already
// have had its ALPN negotiated to "h2" by the TLS acceptor boundary
// (§6), or be an h2c upgrade target.
func NewDispatcher(conn net.Conn, svc htx.Service, cfg Config, tel *telemetry.Hook) *Dispatcher {
	cfg = cfg.withDefaults()
	if tel == nil {
		tel = telemetry.Default()
	}
	return &Dispatcher{
		id:      uuid.NewString(),
		conn:    conn,
		framer:  http2.NewFramer(conn, bufio.NewReaderSize(conn, 16<<10)),
		svc:     svc,
		cfg:     cfg,
		tel:     tel,
		streams: make(map[uint32]*stream),
		pongCh:  make(chan struct{}, 1),
	}
}

type stream struct {
	id         uint32
	reqHeader  hdr.Header
	method     string
	path       string
	bodyCh     chan []byte
	bodyClosed bool
	endStream  bool

	sendWindowMu sync.Mutex
	sendWindowC  *sync.Cond
	sendWindow   int64
}

func newStream(id uint32) *stream {
	s := &stream{id: id, reqHeader: make(hdr.Header), bodyCh: make(chan []byte, 4), sendWindow: defaultInitialWindow}
	s.sendWindowC = sync.NewCond(&s.sendWindowMu)
	return s
}

type streamResult struct {
	id    uint32
	ctype htx.ConnectionType
	err   error
}

// Run performs the connection preface/SETTINGS handshake and then drives
// the 3-way select until the peer closes the connection or a fatal error
// (ping-pong timeout, I/O failure) occurs (§4.6 selection outcomes).
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.handshake(); err != nil {
		return err
	}

	newStreamCh := make(chan *stream, 8)
	doneCh := make(chan streamResult, 8)
	readErrCh := make(chan error, 1)

	go d.readLoop(newStreamCh, readErrCh)

	kaTimer := htx.NewKeepAliveTimer(time.Now().Add(d.cfg.KeepAliveInterval))
	defer kaTimer.Stop()

	var pingInFlight bool
	var pingPayload [8]byte

	inFlight := 0
	shuttingDown := false

	for {
		select {
		case st, ok := <-newStreamCh:
			if !ok {
				// readLoop never closes newStreamCh (shutdown and errors
				// are both signaled through readErrCh below); kept as a
				// defensive fallback, not a reachable shutdown path.
				return d.drain(doneCh, inFlight)
			}
			if shuttingDown {
				// Invariant: no new stream tasks spawned after GOAWAY.
				continue
			}
			inFlight++
			go d.runStreamTask(ctx, st, doneCh)

		case res := <-doneCh:
			inFlight--
			if res.err != nil {
				d.tel.ConnectionError(d.id, d.conn.RemoteAddr().String(), "h2", res.err)
			}
			if res.ctype == htx.Close && !shuttingDown {
				shuttingDown = true
				d.tel.GoAway(d.conn.RemoteAddr().String(), res.id, "handler requested Connection: close")
				d.sendGoAway()
			}
			if shuttingDown && inFlight == 0 {
				return nil
			}

		case <-kaTimer.C():
			if pingInFlight {
				d.tel.PingTimeout(d.conn.RemoteAddr().String())
				return htx.NewError(htx.KindKeepAliveTimeout, errors.New("h2: no PONG within 10x keep-alive interval"))
			}
			rand.Read(pingPayload[:])
			if err := d.writePing(false, pingPayload); err != nil {
				return htx.NewError(htx.KindIO, err)
			}
			pingInFlight = true
			kaTimer.Update(time.Now().Add(10 * d.cfg.KeepAliveInterval))

		case <-d.pongCh:
			pingInFlight = false
			kaTimer.Update(time.Now().Add(d.cfg.KeepAliveInterval))

		case err := <-readErrCh:
			if err == io.EOF {
				return d.drain(doneCh, inFlight)
			}
			return htx.NewError(htx.KindIO, err)
		}
	}
}

func (d *Dispatcher) drain(doneCh chan streamResult, inFlight int) error {
	for inFlight > 0 {
		<-doneCh
		inFlight--
	}
	return nil
}

func (d *Dispatcher) handshake() error {
	d.conn.SetReadDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
	defer d.conn.SetReadDeadline(time.Time{})
	buf := make([]byte, len(preface))
	if _, err := io.ReadFull(d.conn, buf); err != nil {
		return htx.NewError(htx.KindH2Handshake, err)
	}
	if string(buf) != preface {
		return htx.NewError(htx.KindH2Handshake, errors.New("h2: invalid connection preface"))
	}
	if err := d.framer.WriteSettings(); err != nil {
		return htx.NewError(htx.KindH2Handshake, err)
	}
	fr, err := d.framer.ReadFrame()
	if err != nil {
		return htx.NewError(htx.KindH2Handshake, err)
	}
	if _, ok := fr.(*http2.SettingsFrame); !ok {
		return htx.NewError(htx.KindH2Handshake, errors.New("h2: expected client SETTINGS frame"))
	}
	if err := d.framer.WriteSettingsAck(); err != nil {
		return htx.NewError(htx.KindH2Handshake, err)
	}
	return nil
}

func (d *Dispatcher) notifyPong() {
	select {
	case d.pongCh <- struct{}{}:
	default:
	}
}

// readLoop is the accept side of the 3-way select: it owns all reads off
// the Framer and turns HEADERS into new stream tasks, DATA into body
// chunks, and PING/WINDOW_UPDATE/RST_STREAM into their respective
// bookkeeping, matching §4.6(a).
func (d *Dispatcher) readLoop(newStreamCh chan *stream, errCh chan error) {
	dec := hpack.NewDecoder(d.cfg.MaxHeaderListSize, nil)

	for {
		fr, err := d.framer.ReadFrame()
		if err != nil {
			// Signal exclusively through errCh: closing newStreamCh here too
			// would race the two cases in Run's select, letting a real I/O
			// error be picked up as the closed-channel (clean shutdown) case.
			errCh <- err
			return
		}
		switch f := fr.(type) {
		case *http2.HeadersFrame:
			st := newStream(f.StreamID)
			var fields []hpack.HeaderField
			dec.SetEmitFunc(func(hf hpack.HeaderField) { fields = append(fields, hf) })
			dec.Write(f.HeaderBlockFragment())
			for _, hf := range fields {
				switch hf.Name {
				case ":method":
					st.method = hf.Value
				case ":path":
					st.path = hf.Value
				default:
					if len(hf.Name) > 0 && hf.Name[0] != ':' {
						st.reqHeader.Add(hf.Name, hf.Value)
					}
				}
			}
			st.endStream = f.StreamEnded()
			if st.endStream {
				close(st.bodyCh)
				st.bodyClosed = true
			}
			d.streamsMu.Lock()
			d.streams[st.id] = st
			d.streamsMu.Unlock()
			newStreamCh <- st

		case *http2.DataFrame:
			d.streamsMu.Lock()
			st := d.streams[f.StreamID]
			d.streamsMu.Unlock()
			if st != nil && !st.bodyClosed {
				if len(f.Data()) > 0 {
					data := append([]byte{}, f.Data()...)
					st.bodyCh <- data
				}
				if f.StreamEnded() {
					close(st.bodyCh)
					st.bodyClosed = true
				}
			}

		case *http2.WindowUpdateFrame:
			d.streamsMu.Lock()
			st := d.streams[f.StreamID]
			d.streamsMu.Unlock()
			if st != nil {
				st.sendWindowMu.Lock()
				st.sendWindow += int64(f.Increment)
				st.sendWindowC.Broadcast()
				st.sendWindowMu.Unlock()
			}

		case *http2.PingFrame:
			if f.IsAck() {
				d.notifyPong()
			} else {
				d.writePing(true, f.Data)
			}

		case *http2.RSTStreamFrame:
			d.streamsMu.Lock()
			st := d.streams[f.StreamID]
			delete(d.streams, f.StreamID)
			d.streamsMu.Unlock()
			if st != nil && !st.bodyClosed {
				close(st.bodyCh)
			}

		case *http2.GoAwayFrame:
			errCh <- io.EOF
			return

		default:
			// SETTINGS (non-initial, not acknowledged), PRIORITY,
			// CONTINUATION: ignored; full conformance is out of this
			// dispatcher's scope.
		}
	}
}

func (d *Dispatcher) writePing(ack bool, data [8]byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.framer.WritePing(ack, data)
}

func (d *Dispatcher) sendGoAway() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.framer.WriteGoAway(0, http2.ErrCodeNo, nil)
}
