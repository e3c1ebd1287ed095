// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package protocol implements the quorum broadcast: one identical
// request to every replica node, resolved by the first response key
// that F+1 independent nodes report.
package protocol

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colinman/mailvelope"
	"github.com/colinman/mailvelope/config"
	"github.com/colinman/mailvelope/quorum"
	"github.com/colinman/mailvelope/transport"
)

// QuorumError is the aggregate failure the cluster agreed on: F+1 nodes
// reported the same non-ok outcome. Error renders the canonical
// "{statusCode} {statusText} {body}" string surfaced to callers.
type QuorumError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *QuorumError) Error() string {
	return strconv.Itoa(e.Status) + " " + e.StatusText + " " + e.Body
}

type Client struct {
	cluster *config.Cluster
	tr      transport.Transport
	log     *zap.Logger
}

// NewClient builds a broadcast client over an explicit cluster handle.
// The cluster is shared read-only by every broadcast for the client's
// lifetime.
func NewClient(cluster *config.Cluster, tr transport.Transport) *Client {
	return &Client{
		cluster: cluster,
		tr:      tr,
		log:     zap.NewNop(),
	}
}

func (c *Client) SetLogger(log *zap.Logger) {
	c.log = log
}

func (c *Client) Cluster() *config.Cluster {
	return c.cluster
}

type broadcastResult struct {
	res *transport.Response
	err error
}

// Broadcast fans the request out to all N nodes concurrently and
// resolves with the first outcome F+1 nodes agree on: a success key
// yields that response, a failure key yields a *QuorumError. Outcomes
// arriving after resolution are still counted but have no further
// effect, and in-flight calls are not cancelled; every node casts
// exactly one vote by its deadline, so if all N votes land without any
// key reaching F+1 the call fails with mailvelope.ErrNoQuorum. There
// are no retries within a call.
func (c *Client) Broadcast(ctx context.Context, method, path string, body []byte) (*transport.Response, error) {
	nodes := c.cluster.Nodes()
	threshold := c.cluster.Quorum()
	rid := uuid.NewString()
	log := c.log.With(zap.String("rid", rid), zap.String("method", method), zap.String("path", path))
	log.Debug("broadcast", zap.Int("nodes", len(nodes)), zap.Int("threshold", threshold))

	req := &transport.Request{Method: method, Path: path, Body: body}
	ch := make(chan broadcastResult, 1)
	go func() {
		tally := quorum.NewTally(threshold)
		transport.Fanout(ctx, c.tr, nodes, req, func(res *transport.Response) bool {
			if !tally.Add(res.Key()) {
				return false // keep draining the remaining nodes
			}
			if res.OK() {
				log.Debug("quorum certified", zap.Int("status", res.Status))
				ch <- broadcastResult{res: res}
			} else {
				log.Debug("quorum rejected", zap.Int("status", res.Status))
				ch <- broadcastResult{err: &QuorumError{
					Status:     res.Status,
					StatusText: res.StatusText,
					Body:       string(res.Body),
				}}
			}
			return false // observe stragglers; resolution already happened
		})
		if _, done := tally.Settled(); !done {
			log.Debug("indeterminate split", zap.Int("votes", tally.Total()))
			ch <- broadcastResult{err: mailvelope.ErrNoQuorum}
		}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
