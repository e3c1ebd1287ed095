// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package keyserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	openpgp_packet "golang.org/x/crypto/openpgp/packet"

	"github.com/colinman/mailvelope"
	"github.com/colinman/mailvelope/config"
	"github.com/colinman/mailvelope/crypto/pgp"
	"github.com/colinman/mailvelope/packet"
	"github.com/colinman/mailvelope/protocol"
	"github.com/colinman/mailvelope/transport"
)

const testUser = "alice@example.com"

// scriptedTransport answers every node identically from a script keyed
// by "METHOD cmd", so any quorum threshold is met immediately, and
// records each distinct request once.
type scriptedTransport struct {
	mu       sync.Mutex
	script   map[string]*transport.Response
	requests map[string]*transport.Request
}

func newScripted() *scriptedTransport {
	return &scriptedTransport{
		script:   make(map[string]*transport.Response),
		requests: make(map[string]*transport.Request),
	}
}

func (s *scriptedTransport) answer(method, cmd string, status int, statusText, body string) {
	s.script[method+" "+cmd] = &transport.Response{Status: status, StatusText: statusText, Body: []byte(body)}
}

func (s *scriptedTransport) key(req *transport.Request) string {
	cmd := strings.TrimPrefix(req.Path, transport.Prefix)
	if i := strings.IndexByte(cmd, '?'); i >= 0 {
		cmd = cmd[:i]
	}
	return req.Method + " " + cmd
}

func (s *scriptedTransport) RoundTrip(ctx context.Context, n config.Node, req *transport.Request) *transport.Response {
	s.mu.Lock()
	k := s.key(req)
	s.requests[k] = req
	res, ok := s.script[k]
	s.mu.Unlock()
	if !ok {
		return transport.Timeout(n)
	}
	out := *res
	out.Node = n
	return &out
}

func (s *scriptedTransport) request(method, cmd string) *transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+cmd]
}

type fakeKey struct {
	fpr        string
	sig        string
	unlockedBy []byte
	signErr    error
}

func (k *fakeKey) Fingerprint() string { return k.fpr }

func (k *fakeKey) Unlock(passphrase []byte) error {
	k.unlockedBy = passphrase
	return nil
}

func (k *fakeKey) Sign(data []byte) (string, error) {
	return k.sig, k.signErr
}

type fakeStore struct {
	keys        []StoredKey
	lastUser    string
	lastExclude string
	removed     []string
}

func (s *fakeStore) Find(userID, excludeFingerprint string) ([]StoredKey, error) {
	s.lastUser = userID
	s.lastExclude = excludeFingerprint
	return s.keys, nil
}

func (s *fakeStore) Remove(fingerprint string) error {
	s.removed = append(s.removed, fingerprint)
	return nil
}

type fakeAuthority struct {
	called bool
	sig    string
	err    error
}

func (a *fakeAuthority) Certify(ctx context.Context, userID string, publicKeyArmored []byte) (string, error) {
	a.called = true
	return a.sig, a.err
}

func newKeyserver(t *testing.T, tr transport.Transport, store KeyStore, authority SignatureAuthority, passphrase []byte) *Keyserver {
	t.Helper()
	nodes := make([]config.Node, 4)
	for i := range nodes {
		nodes[i] = config.Node{Host: "127.0.0.1", Port: 1 + i}
	}
	cluster, err := config.New(nodes)
	if err != nil {
		t.Fatal(err)
	}
	prompt := func(ctx context.Context, fingerprint string) ([]byte, error) {
		return passphrase, nil
	}
	return New(protocol.NewClient(cluster, tr), store, authority, prompt)
}

var (
	testKeyOnce    sync.Once
	testKeyArmored []byte
	testKeyFpr     string
)

func newKeyMaterial(t *testing.T) ([]byte, string) {
	t.Helper()
	testKeyOnce.Do(func() {
		e, err := openpgp.NewEntity("Alice", "", testUser, &openpgp_packet.Config{RSABits: 1024})
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.SerializePrivate(w, nil); err != nil {
			t.Fatal(err)
		}
		w.Close()
		testKeyArmored = buf.Bytes()
		testKeyFpr = pgp.Fingerprint(e)
	})
	return testKeyArmored, testKeyFpr
}

func storedRecord(t *testing.T) string {
	t.Helper()
	body, err := packet.Serialize(&packet.KeyRecord{
		UserID:           testUser,
		PublicKeyArmored: "old key material",
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestLookupRejectsEmptyIdentity(t *testing.T) {
	tr := newScripted()
	ks := newKeyserver(t, tr, &fakeStore{}, &fakeAuthority{}, nil)
	if _, err := ks.Lookup(context.Background(), ""); err != mailvelope.ErrInvalidUserID {
		t.Errorf("got %v, want ErrInvalidUserID", err)
	}
	if len(tr.requests) != 0 {
		t.Error("empty identity reached the network")
	}
}

func TestLookupSuccess(t *testing.T) {
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 200, "OK", storedRecord(t))
	ks := newKeyserver(t, tr, &fakeStore{}, &fakeAuthority{}, nil)

	cred, err := ks.Lookup(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if cred.UserID != testUser {
		t.Errorf("principal user id is %q", cred.UserID)
	}
	if cred.PublicKeyArmored != "old key material" {
		t.Errorf("got key material %q", cred.PublicKeyArmored)
	}
	if cred.Algorithm != PlaceholderAlgorithm || cred.KeySize != PlaceholderKeySize {
		t.Error("placeholder metadata not filled")
	}
	if cred.Created.IsZero() || cred.Uploaded.IsZero() {
		t.Error("placeholder timestamps not filled")
	}
	// identity travels URL-escaped in the query path
	if req := tr.request(http.MethodGet, transport.CmdRead); !strings.Contains(req.Path, "user=alice%40example.com") {
		t.Errorf("got read path %q", req.Path)
	}
}

func TestLookupPropagatesQuorumFailure(t *testing.T) {
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 500, "Internal Server Error", "boom")
	ks := newKeyserver(t, tr, &fakeStore{}, &fakeAuthority{}, nil)

	_, err := ks.Lookup(context.Background(), testUser)
	if err == nil || err.Error() != "500 Internal Server Error boom" {
		t.Errorf("got %v, want the aggregate error string verbatim", err)
	}
	if IsNotFound(err) {
		t.Error("500 classified as the not-found failure class")
	}
}

func TestUploadCreatesWhenNotFound(t *testing.T) {
	armored, _ := newKeyMaterial(t)
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 404, "Not Found", "Not Found")
	tr.answer(http.MethodPost, transport.CmdCreate, 200, "OK", "")
	authority := &fakeAuthority{sig: "authority signature"}
	store := &fakeStore{}
	ks := newKeyserver(t, tr, store, authority, nil)

	if err := ks.Upload(context.Background(), testUser, armored); err != nil {
		t.Fatal(err)
	}
	if !authority.called {
		t.Fatal("authority was not solicited")
	}
	req := tr.request(http.MethodPost, transport.CmdCreate)
	if req == nil {
		t.Fatal("no create broadcast issued")
	}
	rec, err := packet.Parse(req.Body)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Signature != "authority signature" {
		t.Errorf("create payload carries signature %q", rec.Signature)
	}
	if rec.UserID != testUser || rec.PublicKeyArmored != string(armored) {
		t.Error("create payload does not carry the new key material")
	}
	if store.lastUser != "" {
		t.Error("local store consulted on the create path")
	}
}

func TestUploadRejectsEmptyAuthoritySignature(t *testing.T) {
	armored, _ := newKeyMaterial(t)
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 404, "Not Found", "Not Found")
	ks := newKeyserver(t, tr, &fakeStore{}, &fakeAuthority{sig: ""}, nil)

	if err := ks.Upload(context.Background(), testUser, armored); err != mailvelope.ErrNoSignature {
		t.Errorf("got %v, want ErrNoSignature", err)
	}
	if tr.request(http.MethodPost, transport.CmdCreate) != nil {
		t.Error("create broadcast issued without a signature")
	}
}

func TestUploadOwnershipError(t *testing.T) {
	armored, fpr := newKeyMaterial(t)
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 200, "OK", storedRecord(t))
	store := &fakeStore{} // no eligible credentials
	ks := newKeyserver(t, tr, store, &fakeAuthority{}, nil)

	if err := ks.Upload(context.Background(), testUser, armored); err != mailvelope.ErrNoEligibleCredential {
		t.Fatalf("got %v, want ErrNoEligibleCredential", err)
	}
	if store.lastUser != testUser || store.lastExclude != fpr {
		t.Errorf("store queried with user=%q exclude=%q", store.lastUser, store.lastExclude)
	}
	// aborts before any further cluster contact
	if tr.request(http.MethodPut, transport.CmdUpdate) != nil || tr.request(http.MethodPost, transport.CmdCreate) != nil {
		t.Error("broadcast issued after the ownership error")
	}
}

func TestUploadUpdatesWhenFound(t *testing.T) {
	armored, _ := newKeyMaterial(t)
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 200, "OK", storedRecord(t))
	tr.answer(http.MethodPut, transport.CmdUpdate, 200, "OK", "")
	old := &fakeKey{fpr: "OLDFPR", sig: "owner signature"}
	store := &fakeStore{keys: []StoredKey{old}}
	authority := &fakeAuthority{}
	ks := newKeyserver(t, tr, store, authority, []byte("secret"))

	if err := ks.Upload(context.Background(), testUser, armored); err != nil {
		t.Fatal(err)
	}
	if string(old.unlockedBy) != "secret" {
		t.Error("credential not unlocked with the prompted passphrase")
	}
	req := tr.request(http.MethodPut, transport.CmdUpdate)
	if req == nil {
		t.Fatal("no update broadcast issued")
	}
	rec, err := packet.Parse(req.Body)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Signature != "owner signature" {
		t.Errorf("update payload carries signature %q", rec.Signature)
	}
	if len(store.removed) != 1 || store.removed[0] != "OLDFPR" {
		t.Errorf("old credential not retired: %v", store.removed)
	}
	if authority.called {
		t.Error("authority solicited on the update path")
	}
}

func TestUploadAbortsOnOtherFailures(t *testing.T) {
	armored, _ := newKeyMaterial(t)
	tr := newScripted()
	tr.answer(http.MethodGet, transport.CmdRead, 503, "Service Unavailable", "down")
	store := &fakeStore{}
	authority := &fakeAuthority{}
	ks := newKeyserver(t, tr, store, authority, nil)

	err := ks.Upload(context.Background(), testUser, armored)
	var qe *protocol.QuorumError
	if !errors.As(err, &qe) || qe.Status != 503 {
		t.Fatalf("got %v, want the 503 quorum failure verbatim", err)
	}
	if authority.called || store.lastUser != "" {
		t.Error("collaborators consulted after a fatal lookup failure")
	}
}

func TestUploadRejectsMalformedKey(t *testing.T) {
	tr := newScripted()
	ks := newKeyserver(t, tr, &fakeStore{}, &fakeAuthority{}, nil)
	if err := ks.Upload(context.Background(), testUser, []byte("junk")); err != mailvelope.ErrMalformedKey {
		t.Errorf("got %v, want ErrMalformedKey", err)
	}
	if len(tr.requests) != 0 {
		t.Error("malformed key reached the network")
	}
}
