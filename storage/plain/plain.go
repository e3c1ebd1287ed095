// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package plain

import (
	"encoding/hex"
	"os"
	"sync"

	"github.com/colinman/mailvelope/storage"
)

type plain struct {
	path  string
	mutex sync.Mutex
}

// New stores one file per user id under path, hex-encoding the id so
// any identity is a safe file name.
func New(path string) storage.Storage {
	return &plain{path: path}
}

func (p *plain) constructPath(userID string) string {
	return p.path + "/" + hex.EncodeToString([]byte(userID))
}

func (p *plain) Get(userID string) ([]byte, error) {
	p.mutex.Lock()
	value, err := os.ReadFile(p.constructPath(userID))
	p.mutex.Unlock()
	if err != nil && os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	return value, err
}

func (p *plain) Put(userID string, record []byte) error {
	if _, err := os.Stat(p.path); err != nil && os.IsNotExist(err) {
		if err := os.MkdirAll(p.path, 0777); err != nil {
			return err
		}
	}
	p.mutex.Lock()
	err := os.WriteFile(p.constructPath(userID), record, 0644)
	p.mutex.Unlock()
	return err
}

func (p *plain) Delete(userID string) error {
	p.mutex.Lock()
	err := os.Remove(p.constructPath(userID))
	p.mutex.Unlock()
	if err != nil && os.IsNotExist(err) {
		return storage.ErrNotFound
	}
	return err
}
