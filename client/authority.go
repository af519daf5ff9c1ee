/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"fmt"
	"net/url"
	"strings"
)

// Authority is the pool's map key: scheme, host, port and the SNI name
// used for TLS, mirroring the original's (scheme, host, port, SNI)
// tuple (§4.8).
type Authority struct {
	Scheme string
	Host   string
	Port   string
	SNI    string
}

func (a Authority) String() string {
	if a.Port == "" {
		return fmt.Sprintf("%s://%s", a.Scheme, a.Host)
	}
	return fmt.Sprintf("%s://%s:%s", a.Scheme, a.Host, a.Port)
}

// IsTLS reports whether the scheme requires a TLS dial.
func (a Authority) IsTLS() bool { return a.Scheme == "https" }

// ParseAuthority extracts the pool key from a request URI, defaulting
// the port per scheme when absent. A "unix" scheme addresses a
// Unix-domain socket; its path takes the Host slot of the key since
// there is no host/port to speak of.
func ParseAuthority(rawURI string) (Authority, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return Authority{}, err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	if scheme == "unix" {
		if u.Path == "" {
			return Authority{}, fmt.Errorf("client: missing socket path in %q", rawURI)
		}
		return Authority{Scheme: scheme, Host: u.Path}, nil
	}
	host := u.Hostname()
	if host == "" {
		return Authority{}, fmt.Errorf("client: missing host in %q", rawURI)
	}
	port := u.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return Authority{Scheme: scheme, Host: host, Port: port, SNI: host}, nil
}
