/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package client implements the connection pool and request sender of
// §4.8: a per-authority set of pooled connections keyed by the
// {Tcp,Tls,Unix,H2,H3} variant, a singleflight-deduplicated connect path,
// and a send pipeline with its own timeout for each of the
// resolve/request/response phases, grounded in
// badu-http's tport/persist_conn.go (the H1 free-list/checkout shape)
// and original_source/client/src/request.rs (the timeout ladder and
// destroy-on-drop token).
package client

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/badu/htx/internal/telemetry"
)

// Config bounds pool capacity, buffer sizes and the three-phase timeout
// ladder (§4.8, §6 "Client CLI surface").
type Config struct {
	ResolveTimeout           time.Duration
	RequestTimeout           time.Duration
	ResponseTimeout          time.Duration
	PoolCapacityPerAuthority int
	TLSConfig                *tls.Config
	ReadBufferSize           int
	WriteBufferSize          int
	// PayloadLimit bounds response-body collection; see BodyError Overflow.
	PayloadLimit int64
}

func (c Config) withDefaults() Config {
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	if c.PoolCapacityPerAuthority <= 0 {
		c.PoolCapacityPerAuthority = 32
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4 << 10
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4 << 10
	}
	if c.PayloadLimit <= 0 {
		c.PayloadLimit = 8 << 20
	}
	return c
}

type entry struct {
	mu     sync.Mutex
	idle   []*Connection
	shared *Connection // set once an authority is known to multiplex (H2/H3)
}

// Pool is the per-authority connection cache (§4.8). Its internal map is
// the only shared mutable state crossing connection-task boundaries
// besides the date handle (§5): the mutex's critical sections cover only
// map lookup/insert, never an await/IO call.
type Pool struct {
	cfg Config
	tel *telemetry.Hook

	mu      sync.Mutex
	entries map[Authority]*entry

	sf singleflight.Group
}

// NewPool constructs a Pool with cfg, defaulting unset fields.
func NewPool(cfg Config, tel *telemetry.Hook) *Pool {
	if tel == nil {
		tel = telemetry.Default()
	}
	return &Pool{cfg: cfg.withDefaults(), tel: tel, entries: make(map[Authority]*entry)}
}

func (p *Pool) entryFor(a Authority) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[a]
	if !ok {
		e = &entry{}
		p.entries[a] = e
	}
	return e
}

// Checkout is the acquire result: either an existing connection or a
// freshly dialed one. Release must be called exactly once, the Go
// stand-in for the original's Drop-triggered return-or-destroy decision.
type Checkout struct {
	pool      *Pool
	authority Authority
	conn      *Connection
	destroyed bool
}

// Conn exposes the underlying pooled connection for the sender.
func (co *Checkout) Conn() *Connection { return co.conn }

// Destroy marks the checkout so Release removes it from the pool instead
// of returning it (§4.8, §9 destroy-on-drop).
func (co *Checkout) Destroy() { co.destroyed = true }

// Release returns the connection to its authority's free list, or closes
// and drops it if Destroy was called or reason is non-nil.
func (co *Checkout) Release(reason error) {
	if co.conn.Variant == VariantH2 || co.conn.Variant == VariantH3 {
		// Shared connections are never individually destroyed by one
		// caller's outcome; a fatal transport error closes itself and the
		// next Acquire will observe that and redial.
		return
	}
	e := co.pool.entryFor(co.authority)
	if co.destroyed || reason != nil || co.conn.destroy.Marked() {
		co.pool.tel.PoolEvict(co.authority.String(), reason)
		co.conn.Close()
		return
	}
	e.mu.Lock()
	if len(e.idle) < co.pool.cfg.PoolCapacityPerAuthority {
		e.idle = append(e.idle, co.conn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	co.conn.Close()
}

// Acquire returns a checkout for authority: an idle or shared connection
// if one exists, else a freshly dialed one. Concurrent first-dials for
// the same never-before-seen authority are deduplicated via singleflight
// so a thundering herd doesn't open redundant connections before the
// peer's protocol (H1 vs H2) is even known; once that's established,
// H1 followers dial independently since H1 connections are exclusive.
func (p *Pool) Acquire(ctx context.Context, connect Connect, requestedVersion int) (*Checkout, error) {
	a := connect.Authority
	e := p.entryFor(a)

	e.mu.Lock()
	if e.shared != nil {
		conn := e.shared
		e.mu.Unlock()
		return &Checkout{pool: p, authority: a, conn: conn}, nil
	}
	if len(e.idle) > 0 {
		conn := e.idle[len(e.idle)-1]
		e.idle = e.idle[:len(e.idle)-1]
		e.mu.Unlock()
		return &Checkout{pool: p, authority: a, conn: conn}, nil
	}
	e.mu.Unlock()

	leader := false
	v, err, shared := p.sf.Do(a.String(), func() (interface{}, error) {
		leader = true
		return dial(ctx, connect, requestedVersion, p.cfg.ReadBufferSize, p.cfg.WriteBufferSize)
	})
	if err != nil {
		return nil, err
	}
	conn := v.(*Connection)

	if conn.Variant == VariantH2 || conn.Variant == VariantH3 {
		e.mu.Lock()
		if e.shared == nil {
			e.shared = conn
		} else {
			conn = e.shared // another racer already cached one; use it, drop ours
		}
		e.mu.Unlock()
		return &Checkout{pool: p, authority: a, conn: conn}, nil
	}

	if shared && !leader {
		// We were a follower on the leader's dial but H1 connections are
		// exclusive: dial our own rather than fight over the leader's.
		conn, err = dial(ctx, connect, requestedVersion, p.cfg.ReadBufferSize, p.cfg.WriteBufferSize)
		if err != nil {
			return nil, err
		}
	}
	return &Checkout{pool: p, authority: a, conn: conn}, nil
}
