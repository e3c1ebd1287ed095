// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package config loads the cluster membership document and derives the
// fault tolerance parameters. A Cluster is immutable once loaded and is
// shared read-only by every broadcast for the lifetime of the process;
// there is no refresh path -- callers reconstruct the client to pick up
// new membership.
package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/colinman/mailvelope"
)

type Node struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the client endpoint of the node, e.g. "http://10.0.0.1:8001".
func (n Node) Address() string {
	return "http://" + n.Host + ":" + strconv.Itoa(n.Port)
}

type Cluster struct {
	nodes []Node
}

type document struct {
	Nodes []Node `yaml:"nodes"`
}

// New builds a Cluster from an explicit node list. The slice is copied
// so later mutation by the caller cannot leak into broadcasts.
func New(nodes []Node) (*Cluster, error) {
	if len(nodes) == 0 {
		return nil, mailvelope.ErrEmptyCluster
	}
	for _, n := range nodes {
		if n.Host == "" || n.Port <= 0 || n.Port > 65535 {
			return nil, fmt.Errorf("config: bad endpoint %q:%d", n.Host, n.Port)
		}
	}
	c := &Cluster{nodes: make([]Node, len(nodes))}
	copy(c.nodes, nodes)
	return c, nil
}

// Load reads the membership document from a local file. Failure is
// fatal to the caller and is never retried here.
func Load(path string) (*Cluster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// Fetch retrieves the membership document over HTTP. The first
// broadcast of a process blocks on this exactly once.
func Fetch(url string) (*Cluster, error) {
	res, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: %s returned %s", url, res.Status)
	}
	return parse(res.Body)
}

func parse(r io.Reader) (*Cluster, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: malformed membership document: %w", err)
	}
	return New(doc.Nodes)
}

// Nodes returns the ordered membership. The returned slice is a copy.
func (c *Cluster) Nodes() []Node {
	nodes := make([]Node, len(c.nodes))
	copy(nodes, c.nodes)
	return nodes
}

func (c *Cluster) N() int {
	return len(c.nodes)
}

// F is the number of faulty nodes the cluster tolerates: ceil((N-1)/3),
// so that N >= 3F+1 always holds.
func (c *Cluster) F() int {
	return (len(c.nodes) + 1) / 3
}

// Quorum is the agreement threshold: F+1 matching responses.
func (c *Cluster) Quorum() int {
	return c.F() + 1
}
