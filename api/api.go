// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package api is the directory-service facade consumers program against:
// lookup/upload/remove by identity, with the user preference flags
// translated here rather than inside the workflows.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/colinman/mailvelope"
	"github.com/colinman/mailvelope/config"
	"github.com/colinman/mailvelope/keyring"
	"github.com/colinman/mailvelope/keyserver"
	"github.com/colinman/mailvelope/protocol"
	"github.com/colinman/mailvelope/transport"
	transport_http "github.com/colinman/mailvelope/transport/http"
)

type API struct {
	client *protocol.Client
	ks     *keyserver.Keyserver
	tr     transport.Transport
	log    *zap.Logger

	// TrustUnknownKeys makes Lookup report a missing record as
	// (nil, nil) instead of the 404 quorum failure, for callers that
	// treat first contact as trusted.
	TrustUnknownKeys bool
}

// Open wires the facade: cluster handle, HTTP transport, broadcast
// client, local keyring and the human-input capabilities.
func Open(cluster *config.Cluster, ring *keyring.Store, authority keyserver.SignatureAuthority, prompt keyserver.PassphrasePrompt) *API {
	tr := transport_http.New()
	client := protocol.NewClient(cluster, tr)
	return &API{
		client: client,
		ks:     keyserver.New(client, &localStore{ring}, authority, prompt),
		tr:     tr,
		log:    zap.NewNop(),
	}
}

func (a *API) SetLogger(log *zap.Logger) {
	a.log = log
	a.client.SetLogger(log)
	a.ks.SetLogger(log)
}

func (a *API) Lookup(ctx context.Context, userID string) (*keyserver.Credential, error) {
	cred, err := a.ks.Lookup(ctx, userID)
	if err != nil && a.TrustUnknownKeys && keyserver.IsNotFound(err) {
		return nil, nil
	}
	return cred, err
}

func (a *API) Upload(ctx context.Context, userID string, armoredKey []byte) error {
	return a.ks.Upload(ctx, userID, armoredKey)
}

// Remove deletes the identity's record. This is the plain non-quorum
// path: the delete is fanned to every node and succeeds if any node
// accepts; no certificate is collected.
func (a *API) Remove(ctx context.Context, userID string) error {
	if userID == "" {
		return mailvelope.ErrInvalidUserID
	}
	req := &transport.Request{
		Method: http.MethodDelete,
		Path:   transport.Prefix + transport.CmdDelete + "?user=" + url.QueryEscape(userID),
	}
	var accepted bool
	var last *transport.Response
	transport.Fanout(ctx, a.tr, a.client.Cluster().Nodes(), req, func(res *transport.Response) bool {
		if res.OK() {
			accepted = true
		} else {
			last = res
		}
		return false // remove from every node that answers
	})
	if accepted {
		return nil
	}
	if last != nil {
		return errors.New(last.Key())
	}
	return mailvelope.ErrNoQuorum
}

// localStore adapts the keyring to the workflow's store contract.
type localStore struct {
	ring *keyring.Store
}

func (s *localStore) Find(userID, excludeFingerprint string) ([]keyserver.StoredKey, error) {
	creds := s.ring.Find(userID, excludeFingerprint)
	keys := make([]keyserver.StoredKey, 0, len(creds))
	for _, c := range creds {
		keys = append(keys, c)
	}
	return keys, nil
}

func (s *localStore) Remove(fingerprint string) error {
	return s.ring.Remove(fingerprint)
}
