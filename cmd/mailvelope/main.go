// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/colinman/mailvelope/config"
)

var (
	clusterDoc string
	verbose    bool
)

func main() {
	godotenv.Load() // optional .env, ignore when absent

	rootCmd := &cobra.Command{
		Use:   "mailvelope",
		Short: "BFT key directory client and replica node",
		Long: `A key directory client for a fixed cluster of replica nodes. Every
request is broadcast to all nodes and accepted once F+1 of them agree
on the same outcome.`,
	}

	rootCmd.PersistentFlags().StringVarP(&clusterDoc, "cluster", "c", envOr("MAILVELOPE_CLUSTER", "cluster.yaml"), "cluster membership document (file path or URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		nodeCmd(),
		lookupCmd(),
		uploadCmd(),
		removeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() *zap.Logger {
	if verbose {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}

func loadCluster() (*config.Cluster, error) {
	if strings.HasPrefix(clusterDoc, "http://") || strings.HasPrefix(clusterDoc, "https://") {
		return config.Fetch(clusterDoc)
	}
	return config.Load(clusterDoc)
}
