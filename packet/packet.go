// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package packet defines the key record wire format shared by the
// broadcast client and the replica node server. Records travel as JSON;
// replicas store and echo them verbatim, so honest nodes produce
// byte-identical response keys.
package packet

import (
	"encoding/json"

	"github.com/colinman/mailvelope"
)

type KeyRecord struct {
	UserID           string `json:"userId"`
	KeyID            string `json:"keyId,omitempty"`
	Fingerprint      string `json:"fingerprint,omitempty"`
	PublicKeyArmored string `json:"publicKeyArmored"`
	Signature        string `json:"signature,omitempty"`
}

func Serialize(r *KeyRecord) ([]byte, error) {
	if r.UserID == "" {
		return nil, mailvelope.ErrInvalidUserID
	}
	if r.PublicKeyArmored == "" {
		return nil, mailvelope.ErrMalformedKey
	}
	return json.Marshal(r)
}

func Parse(data []byte) (*KeyRecord, error) {
	var r KeyRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.UserID == "" {
		return nil, mailvelope.ErrInvalidUserID
	}
	if r.PublicKeyArmored == "" {
		return nil, mailvelope.ErrMalformedKey
	}
	return &r, nil
}
