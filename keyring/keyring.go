// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package keyring is the local credential store: the private keys the
// caller owns, one armored key block per file under a directory,
// indexed by fingerprint. Removal deletes the file after writing a
// backup of the previous content.
package keyring

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/openpgp"

	"github.com/colinman/mailvelope"
	"github.com/colinman/mailvelope/crypto/pgp"
)

const keyFileExt = ".asc"

// Credential is one locally owned private key.
type Credential struct {
	entity      *openpgp.Entity
	fingerprint string
	path        string
}

func (c *Credential) Fingerprint() string {
	return c.fingerprint
}

func (c *Credential) Entity() *openpgp.Entity {
	return c.entity
}

func (c *Credential) Unlock(passphrase []byte) error {
	return pgp.Unlock(c.entity, passphrase)
}

func (c *Credential) Sign(data []byte) (string, error) {
	return pgp.SignDetached(c.entity, data)
}

type Store struct {
	dir   string
	mu    sync.Mutex
	creds []*Credential
}

// Open loads every key file under dir, creating the directory when it
// does not exist yet.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		ring, err := pgp.ParseArmored(data)
		if err != nil {
			continue // leave unparseable files alone
		}
		for _, e := range ring {
			if e.PrivateKey == nil {
				continue
			}
			s.creds = append(s.creds, &Credential{
				entity:      e,
				fingerprint: pgp.Fingerprint(e),
				path:        path,
			})
		}
	}
	return s, nil
}

// Add stores a new armored private key block verbatim and indexes it.
func (s *Store) Add(armored []byte) (*Credential, error) {
	e, err := pgp.ParseArmoredEntity(armored)
	if err != nil {
		return nil, err
	}
	if e.PrivateKey == nil {
		return nil, mailvelope.ErrKeyNotFound
	}
	fpr := pgp.Fingerprint(e)
	path := filepath.Join(s.dir, fpr+keyFileExt)
	if err := os.WriteFile(path, armored, 0600); err != nil {
		return nil, err
	}
	cred := &Credential{entity: e, fingerprint: fpr, path: path}
	s.mu.Lock()
	s.creds = append(s.creds, cred)
	s.mu.Unlock()
	return cred, nil
}

// Find returns the credentials whose identity matches userID, skipping
// the one with excludeFingerprint (the key currently being uploaded).
func (s *Store) Find(userID, excludeFingerprint string) []*Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*Credential
	for _, c := range s.creds {
		if c.fingerprint == excludeFingerprint {
			continue
		}
		if matchesUser(c.entity, userID) {
			found = append(found, c)
		}
	}
	return found
}

// Remove retires the credential with the given fingerprint, keeping a
// backup of the key file next to it.
func (s *Store) Remove(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.creds {
		if c.fingerprint != fingerprint {
			continue
		}
		if err := os.Rename(c.path, c.path+"~"); err != nil {
			return err
		}
		s.creds = append(s.creds[:i], s.creds[i+1:]...)
		return nil
	}
	return mailvelope.ErrKeyNotFound
}

// Size returns the number of indexed credentials.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds)
}

func matchesUser(e *openpgp.Entity, userID string) bool {
	for _, id := range e.Identities {
		if id.UserId == nil {
			continue
		}
		if strings.EqualFold(id.UserId.Email, userID) {
			return true
		}
	}
	return false
}
