// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package storage is the key-record store behind a replica node,
// keyed by the record's user id.
package storage

import (
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	Get(userID string) (record []byte, err error)
	Put(userID string, record []byte) error
	Delete(userID string) error
}
