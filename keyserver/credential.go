// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package keyserver

import (
	"time"

	"github.com/colinman/mailvelope/packet"
)

// Replicas store only the key material, so the directory fills these
// fixed metadata placeholders into every credential it hands out.
const (
	PlaceholderAlgorithm = "rsa_encrypt_sign"
	PlaceholderKeySize   = 4096
)

// Credential is the directory record handed to consumers: the wire
// record plus the placeholder metadata fields.
type Credential struct {
	UserID           string    `json:"userId"`
	KeyID            string    `json:"keyId,omitempty"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Algorithm        string    `json:"algorithm"`
	KeySize          int       `json:"keySize"`
	Created          time.Time `json:"created"`
	Uploaded         time.Time `json:"uploaded"`
	PublicKeyArmored string    `json:"publicKeyArmored"`
	Signature        string    `json:"signature,omitempty"`
}

// newCredential builds the consumer record from a wire record. The
// caller-supplied identity becomes the principal user id regardless of
// what the stored record carries.
func newCredential(userID string, rec *packet.KeyRecord) *Credential {
	now := time.Now().UTC()
	return &Credential{
		UserID:           userID,
		KeyID:            rec.KeyID,
		Fingerprint:      rec.Fingerprint,
		Algorithm:        PlaceholderAlgorithm,
		KeySize:          PlaceholderKeySize,
		Created:          now,
		Uploaded:         now,
		PublicKeyArmored: rec.PublicKeyArmored,
		Signature:        rec.Signature,
	}
}
