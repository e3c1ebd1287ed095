// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package pgp wraps the OpenPGP operations the directory client needs:
// parsing armored key material, fingerprints, unlocking private keys
// and producing armored detached signatures.
package pgp

import (
	"bytes"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/openpgp"

	"github.com/colinman/mailvelope"
)

// ParseArmored reads all entities from an armored key block.
func ParseArmored(data []byte) (openpgp.EntityList, error) {
	ring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, mailvelope.ErrMalformedKey
	}
	return ring, nil
}

// ParseArmoredEntity reads a single key block and returns its first entity.
func ParseArmoredEntity(data []byte) (*openpgp.Entity, error) {
	ring, err := ParseArmored(data)
	if err != nil {
		return nil, err
	}
	if len(ring) == 0 {
		return nil, mailvelope.ErrMalformedKey
	}
	return ring[0], nil
}

// Fingerprint renders the primary key fingerprint as uppercase hex.
func Fingerprint(e *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint[:]))
}

func KeyID(e *openpgp.Entity) string {
	return e.PrimaryKey.KeyIdString()
}

// PrimaryUserID returns the email of the entity's first identity.
func PrimaryUserID(e *openpgp.Entity) string {
	for _, id := range e.Identities {
		if id.UserId != nil && id.UserId.Email != "" {
			return id.UserId.Email
		}
	}
	return ""
}

// Unlock decrypts the entity's private key material in place. A key
// that is not passphrase-protected unlocks without one.
func Unlock(e *openpgp.Entity, passphrase []byte) error {
	if e.PrivateKey == nil {
		return mailvelope.ErrKeyNotFound
	}
	if e.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return mailvelope.ErrPassphraseRequired
		}
		if err := e.PrivateKey.Decrypt(passphrase); err != nil {
			return err
		}
	}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return err
			}
		}
	}
	return nil
}

// SignDetached produces an armored detached signature over data with
// the entity's unlocked private key.
func SignDetached(e *openpgp.Entity, data []byte) (string, error) {
	if e.PrivateKey == nil {
		return "", mailvelope.ErrKeyNotFound
	}
	if e.PrivateKey.Encrypted {
		return "", mailvelope.ErrPassphraseRequired
	}
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, e, bytes.NewReader(data), nil); err != nil {
		return "", mailvelope.ErrSigningFailed
	}
	return buf.String(), nil
}

// Verify checks an armored detached signature over data against the
// given entity.
func Verify(e *openpgp.Entity, data []byte, armoredSig string) error {
	_, err := openpgp.CheckArmoredDetachedSignature(
		openpgp.EntityList{e}, bytes.NewReader(data), strings.NewReader(armoredSig))
	return err
}
