// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/colinman/mailvelope/config"
	"github.com/colinman/mailvelope/transport"
)

const (
	DIAL_TIMEOUT     = 5
	IDLE_TIMEOUT     = 10
	RESPONSE_TIMEOUT = 10
)

type TrHTTP struct {
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// New returns the HTTP transport with the fixed per-node deadline.
func New() *TrHTTP {
	return NewWithTimeout(transport.RequestTimeoutMS * time.Millisecond)
}

// NewWithTimeout is New with a custom per-node deadline. Tests use
// short deadlines to observe timeout votes quickly.
func NewWithTimeout(timeout time.Duration) *TrHTTP {
	tr := &http.Transport{
		Dial: func(network, addr string) (net.Conn, error) {
			return net.DialTimeout(network, addr, time.Duration(DIAL_TIMEOUT)*time.Second)
		},
		MaxIdleConns:          1, // for testing -- running multiple servers in one process may exceed the limit of #sockets
		IdleConnTimeout:       time.Duration(IDLE_TIMEOUT) * time.Second,
		ResponseHeaderTimeout: time.Duration(RESPONSE_TIMEOUT) * time.Second,
	}
	return &TrHTTP{
		client:  &http.Client{Transport: tr},
		timeout: timeout,
		log:     zap.NewNop(),
	}
}

func (h *TrHTTP) SetLogger(log *zap.Logger) {
	h.log = log
}

// RoundTrip races one node's request against the per-node deadline. Any
// transport-level failure, the deadline included, synthesizes the 520
// timeout outcome so the node still casts exactly one vote. A real
// response that arrives after the deadline is discarded by the request
// context.
func (h *TrHTTP) RoundTrip(ctx context.Context, n config.Node, req *transport.Request) *transport.Response {
	rctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(rctx, req.Method, n.Address()+req.Path, body)
	if err != nil {
		h.log.Warn("bad request", zap.String("node", n.Address()), zap.Error(err))
		return transport.Timeout(n)
	}
	if len(req.Body) > 0 {
		hreq.Header.Set("Content-Type", "application/json")
	}
	res, err := h.client.Do(hreq)
	if err != nil {
		h.log.Debug("node unresponsive", zap.String("node", n.Address()), zap.Error(err))
		return transport.Timeout(n)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		data = nil // failure text falls back to empty
	}
	return &transport.Response{
		Node:       n,
		Status:     res.StatusCode,
		StatusText: http.StatusText(res.StatusCode),
		Body:       data,
	}
}
