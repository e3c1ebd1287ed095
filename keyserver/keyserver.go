// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package keyserver implements the directory workflows on top of the
// quorum broadcast: lookup by user id and upload with create/update
// branching. Human input (signature certification, passphrases) and the
// local credential store are injected capabilities; the workflows never
// perform interactive I/O themselves.
package keyserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/colinman/mailvelope"
	"github.com/colinman/mailvelope/crypto/pgp"
	"github.com/colinman/mailvelope/packet"
	"github.com/colinman/mailvelope/protocol"
	"github.com/colinman/mailvelope/transport"
)

// StoredKey is one locally owned credential the workflow can unlock and
// sign with.
type StoredKey interface {
	Fingerprint() string
	Unlock(passphrase []byte) error
	Sign(data []byte) (armoredSig string, err error)
}

// KeyStore is the local credential store: query by identity excluding
// the fingerprint of the key being uploaded, and retire by fingerprint.
type KeyStore interface {
	Find(userID, excludeFingerprint string) ([]StoredKey, error)
	Remove(fingerprint string) error
}

// SignatureAuthority certifies brand-new key material. Certify may
// suspend indefinitely on human input; the context is the only bound.
type SignatureAuthority interface {
	Certify(ctx context.Context, userID string, publicKeyArmored []byte) (armoredSig string, err error)
}

// PassphrasePrompt solicits the passphrase for the credential with the
// given fingerprint.
type PassphrasePrompt func(ctx context.Context, fingerprint string) ([]byte, error)

type Keyserver struct {
	client    *protocol.Client
	store     KeyStore
	authority SignatureAuthority
	prompt    PassphrasePrompt
	log       *zap.Logger
}

func New(client *protocol.Client, store KeyStore, authority SignatureAuthority, prompt PassphrasePrompt) *Keyserver {
	return &Keyserver{
		client:    client,
		store:     store,
		authority: authority,
		prompt:    prompt,
		log:       zap.NewNop(),
	}
}

func (ks *Keyserver) SetLogger(log *zap.Logger) {
	ks.log = log
}

// IsNotFound reports whether err is the directory's not-found failure
// class: a quorum of nodes agreed on a 404. The branch is on the
// numeric status, never on the rendered error string.
func IsNotFound(err error) bool {
	var qe *protocol.QuorumError
	return errors.As(err, &qe) && qe.Status == http.StatusNotFound
}

// Lookup resolves a user id to its directory credential. An empty id is
// rejected before any network contact; a quorum failure is propagated
// with its string form unchanged.
func (ks *Keyserver) Lookup(ctx context.Context, userID string) (*Credential, error) {
	if userID == "" {
		return nil, mailvelope.ErrInvalidUserID
	}
	path := transport.Prefix + transport.CmdRead + "?user=" + url.QueryEscape(userID)
	res, err := ks.client.Broadcast(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	rec, err := packet.Parse(res.Body)
	if err != nil {
		return nil, err
	}
	return newCredential(userID, rec), nil
}

// Upload publishes new key material for userID. A missing record is
// created with a signature solicited from the authority; an existing
// record is updated with a signature from a locally owned credential,
// which is retired once the update commits.
func (ks *Keyserver) Upload(ctx context.Context, userID string, armoredKey []byte) error {
	if userID == "" {
		return mailvelope.ErrInvalidUserID
	}
	entity, err := pgp.ParseArmoredEntity(armoredKey)
	if err != nil {
		return err
	}
	rec := &packet.KeyRecord{
		UserID:           userID,
		KeyID:            pgp.KeyID(entity),
		Fingerprint:      pgp.Fingerprint(entity),
		PublicKeyArmored: string(armoredKey),
	}

	_, err = ks.Lookup(ctx, userID)
	switch {
	case err == nil:
		return ks.update(ctx, rec, armoredKey)
	case IsNotFound(err):
		return ks.create(ctx, rec, armoredKey)
	default:
		return err
	}
}

func (ks *Keyserver) create(ctx context.Context, rec *packet.KeyRecord, armoredKey []byte) error {
	ks.log.Debug("no directory record, requesting certification", zap.String("user", rec.UserID))
	sig, err := ks.authority.Certify(ctx, rec.UserID, armoredKey)
	if err != nil {
		return err
	}
	if sig == "" {
		return mailvelope.ErrNoSignature
	}
	rec.Signature = sig
	body, err := packet.Serialize(rec)
	if err != nil {
		return err
	}
	_, err = ks.client.Broadcast(ctx, http.MethodPost, transport.Prefix+transport.CmdCreate, body)
	return err
}

func (ks *Keyserver) update(ctx context.Context, rec *packet.KeyRecord, armoredKey []byte) error {
	owned, err := ks.store.Find(rec.UserID, rec.Fingerprint)
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		return mailvelope.ErrNoEligibleCredential
	}
	old := owned[0]
	passphrase, err := ks.prompt(ctx, old.Fingerprint())
	if err != nil {
		return err
	}
	if err := old.Unlock(passphrase); err != nil {
		return err
	}
	sig, err := old.Sign(armoredKey)
	if err != nil {
		return err
	}
	rec.Signature = sig
	body, err := packet.Serialize(rec)
	if err != nil {
		return err
	}
	if _, err := ks.client.Broadcast(ctx, http.MethodPut, transport.Prefix+transport.CmdUpdate, body); err != nil {
		return err
	}
	ks.log.Debug("update committed, retiring old credential",
		zap.String("user", rec.UserID), zap.String("fingerprint", old.Fingerprint()))
	return ks.store.Remove(old.Fingerprint())
}
