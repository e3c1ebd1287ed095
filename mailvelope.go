// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package mailvelope holds the sentinel errors shared across the key
// directory client, the broadcast protocol and the replica node server.
package mailvelope

import (
	"errors"
)

var (
	ErrInvalidUserID        = errors.New("invalid user ID")
	ErrNoQuorum             = errors.New("no quorum certificate")
	ErrNoEligibleCredential = errors.New("no eligible local credential")
	ErrKeyNotFound          = errors.New("key not found")
	ErrMalformedKey         = errors.New("malformed key material")
	ErrSigningFailed        = errors.New("signing failed")
	ErrPassphraseRequired   = errors.New("passphrase required")
	ErrEmptyCluster         = errors.New("cluster configuration has no nodes")
	ErrNoSignature          = errors.New("no signature supplied")
)
