/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"io"
	"strconv"

	"github.com/badu/htx"
	"github.com/badu/htx/hdr"
)

// collectWithLimit reads body fully into a fixed-ceiling buffer, enforcing
// the payload-limit property (§4.8, §8 P6, scenario 6): no more than
// min(Content-Length, the configured ceiling) bytes are ever retained.
// A declared Content-Length already over the ceiling fails fast without
// reading any body bytes.
func (c *Client) collectWithLimit(ctx context.Context, body htx.BodyReader, header hdr.Header) (htx.BodyReader, error) {
	limit := c.pool.cfg.PayloadLimit
	if cl := header.Get(hdr.ContentLength); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > limit {
			return nil, htx.ErrBodyOverflow
		}
	}

	buf := make([]byte, 0, 4096)
	for {
		chunk, err := body.Next(ctx)
		if len(chunk) > 0 {
			if int64(len(buf)+len(chunk)) > limit {
				return nil, htx.ErrBodyOverflow
			}
			buf = append(buf, chunk...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return htx.NewBytesBody(buf), nil
}
