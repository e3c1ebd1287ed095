// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/colinman/mailvelope/protocol"
	"github.com/colinman/mailvelope/storage"
	storage_leveldb "github.com/colinman/mailvelope/storage/leveldb"
	storage_plain "github.com/colinman/mailvelope/storage/plain"
)

func nodeCmd() *cobra.Command {
	var (
		addr    string
		dbPath  string
		ldbPath string
	)
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a replica node",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			var st storage.Storage
			if ldbPath != "" {
				var err error
				st, err = storage_leveldb.New(ldbPath)
				if err != nil {
					return err
				}
			} else {
				st = storage_plain.New(dbPath)
			}

			s := protocol.NewServer(st)
			s.SetLogger(logger)
			s.Start(addr)
			logger.Info("replica node started", zap.String("addr", addr))

			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
			<-ch

			s.Stop()
			logger.Info("replica node stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":5995", "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "db", "plain storage path")
	cmd.Flags().StringVar(&ldbPath, "ldb", "", "leveldb storage path (overrides --db)")
	return cmd
}
