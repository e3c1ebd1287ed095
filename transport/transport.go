// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package transport defines the request/response model the broadcast
// protocol fans out to replica nodes, and the canonical response key
// used to bucket outcomes for quorum counting.
package transport

import (
	"context"
	"strconv"

	"github.com/colinman/mailvelope/config"
)

// Synthesized outcome for a node that misses its deadline or cannot be
// reached at all. 520 is outside the IANA range so it never collides
// with a real server response.
const (
	StatusTimeout     = 520
	StatusTimeoutText = "Request Timeout"
)

// RequestTimeoutMS is the fixed per-node deadline in milliseconds.
const RequestTimeoutMS = 7000

// Prefix is the REST prefix every replica node serves under.
const Prefix = "/mailvelope/v1/"

const (
	CmdRead   = "read"
	CmdCreate = "create"
	CmdUpdate = "update"
	CmdDelete = "delete"
)

type Request struct {
	Method string // GET, POST, PUT or DELETE
	Path   string // absolute path, query string included
	Body   []byte // optional serialized payload
}

// Response is the outcome of one node's call: either the node's actual
// HTTP response, or the synthesized timeout. Success bodies carry the
// node's structured record verbatim; failure bodies carry the node's
// error text, empty when unreadable.
type Response struct {
	Node       config.Node
	Status     int
	StatusText string
	Body       []byte
}

// OK reports whether the outcome is in the HTTP-ok class.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Key is the canonical equality key of the outcome. Two outcomes agree
// iff their keys are byte-identical; no normalization is applied. The
// same rendering is surfaced verbatim as the aggregate error string.
func (r *Response) Key() string {
	return strconv.Itoa(r.Status) + " " + r.StatusText + " " + string(r.Body)
}

// Timeout synthesizes the failure outcome for a silent or unreachable node.
func Timeout(n config.Node) *Response {
	return &Response{Node: n, Status: StatusTimeout, StatusText: StatusTimeoutText}
}

// Transport issues one request to one node. RoundTrip never returns an
// error: transport-level failures are folded into the synthesized
// timeout outcome so every node always casts exactly one vote.
type Transport interface {
	RoundTrip(ctx context.Context, n config.Node, req *Request) *Response
}

// Fanout issues req to every node concurrently and delivers outcomes to
// cb in arrival order. cb returning true stops delivery; the remaining
// calls are not cancelled and their outcomes are discarded when they
// complete. Fanout returns once delivery is done.
func Fanout(ctx context.Context, tr Transport, nodes []config.Node, req *Request, cb func(res *Response) bool) {
	ch := make(chan *Response, len(nodes))
	for _, n := range nodes {
		go func(n config.Node) {
			ch <- tr.RoundTrip(ctx, n, req)
		}(n)
	}
	for i := 0; i < len(nodes); i++ {
		res := <-ch
		if cb != nil && cb(res) {
			break
		}
	}
}
