// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/colinman/mailvelope/api"
	"github.com/colinman/mailvelope/keyring"
)

func openAPI(keyringDir string, sigFile string) (*api.API, error) {
	cluster, err := loadCluster()
	if err != nil {
		return nil, err
	}
	ring, err := keyring.Open(keyringDir)
	if err != nil {
		return nil, err
	}
	a := api.Open(cluster, ring, &fileAuthority{path: sigFile}, promptPassphrase)
	a.SetLogger(newLogger())
	return a, nil
}

func defaultKeyringDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailvelope/keyring"
	}
	return home + "/.mailvelope/keyring"
}

func lookupCmd() *cobra.Command {
	var keyringDir string
	cmd := &cobra.Command{
		Use:   "lookup <user-id>",
		Short: "Look up a directory credential by user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAPI(keyringDir, "")
			if err != nil {
				return err
			}
			cred, err := a.Lookup(context.Background(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cred, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyringDir, "keyring", defaultKeyringDir(), "local credential store directory")
	return cmd
}

func uploadCmd() *cobra.Command {
	var (
		keyringDir string
		keyFile    string
		sigFile    string
	)
	cmd := &cobra.Command{
		Use:   "upload <user-id>",
		Short: "Publish new key material for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			armored, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			a, err := openAPI(keyringDir, sigFile)
			if err != nil {
				return err
			}
			return a.Upload(context.Background(), args[0], armored)
		},
	}
	cmd.Flags().StringVar(&keyringDir, "keyring", defaultKeyringDir(), "local credential store directory")
	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "armored public key file to publish")
	cmd.Flags().StringVarP(&sigFile, "signature", "s", "", "armored detached signature file for first-time uploads")
	cmd.MarkFlagRequired("key")
	return cmd
}

func removeCmd() *cobra.Command {
	var keyringDir string
	cmd := &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Delete a user id from the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAPI(keyringDir, "")
			if err != nil {
				return err
			}
			return a.Remove(context.Background(), args[0])
		},
	}
	cmd.Flags().StringVar(&keyringDir, "keyring", defaultKeyringDir(), "local credential store directory")
	return cmd
}

func promptPassphrase(ctx context.Context, fingerprint string) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "passphrase for %s: ", fingerprint)
	pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return pass, err
}

// fileAuthority satisfies the first-upload certification step: it reads
// an armored detached signature from the --signature file when given,
// and otherwise prompts for one on stdin.
type fileAuthority struct {
	path string
}

func (f *fileAuthority) Certify(ctx context.Context, userID string, publicKeyArmored []byte) (string, error) {
	if f.path != "" {
		sig, err := os.ReadFile(f.path)
		if err != nil {
			return "", err
		}
		return string(sig), nil
	}
	fmt.Fprintf(os.Stderr, "no directory record for %s; paste an armored detached signature over the key, end with an empty line:\n", userID)
	var b strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
