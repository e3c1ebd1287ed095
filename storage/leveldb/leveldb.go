// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/colinman/mailvelope/storage"
)

type ldb struct {
	db *leveldb.DB
}

func New(path string) (storage.Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &ldb{db: db}, nil
}

func (db *ldb) Get(userID string) ([]byte, error) {
	value, err := db.db.Get([]byte(userID), nil)
	if err == leveldb.ErrNotFound {
		return nil, storage.ErrNotFound
	}
	return value, err
}

func (db *ldb) Put(userID string, record []byte) error {
	return db.db.Put([]byte(userID), record, &opt.WriteOptions{Sync: true})
}

func (db *ldb) Delete(userID string) error {
	ok, err := db.db.Has([]byte(userID), nil)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return db.db.Delete([]byte(userID), &opt.WriteOptions{Sync: true})
}

func (db *ldb) Close() error {
	return db.db.Close()
}
