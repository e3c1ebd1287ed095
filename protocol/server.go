// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

package protocol

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/colinman/mailvelope/packet"
	"github.com/colinman/mailvelope/storage"
	"github.com/colinman/mailvelope/transport"
)

// Server is one replica node of the directory cluster. It answers every
// request deterministically from its storage so that honest replicas
// produce byte-identical outcomes for the client's quorum check.
type Server struct {
	st         storage.Storage
	httpServer *http.Server
	log        *zap.Logger
}

func NewServer(st storage.Storage) *Server {
	return &Server{
		st:  st,
		log: zap.NewNop(),
	}
}

func (s *Server) SetLogger(log *zap.Logger) {
	s.log = log
}

// Handler builds the node's router. Exposed so tests can mount it on
// httptest servers.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(transport.Prefix+transport.CmdRead, s.handleRead)
	r.Post(transport.Prefix+transport.CmdCreate, s.handleCreate)
	r.Put(transport.Prefix+transport.CmdUpdate, s.handleUpdate)
	r.Delete(transport.Prefix+transport.CmdDelete, s.handleDelete)
	return r
}

func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	go s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
	s.httpServer.Close()
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	record, err := s.st.Get(user)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("read", zap.String("user", user), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(record)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	rec, raw, ok := s.parseRecord(w, r)
	if !ok {
		return
	}
	if _, err := s.st.Get(rec.UserID); err == nil {
		http.Error(w, "Conflict", http.StatusConflict)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("create", zap.String("user", rec.UserID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := s.st.Put(rec.UserID, raw); err != nil {
		s.log.Error("create", zap.String("user", rec.UserID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.log.Info("created", zap.String("user", rec.UserID))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rec, raw, ok := s.parseRecord(w, r)
	if !ok {
		return
	}
	if _, err := s.st.Get(rec.UserID); errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	} else if err != nil {
		s.log.Error("update", zap.String("user", rec.UserID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if rec.Signature == "" {
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}
	if err := s.st.Put(rec.UserID, raw); err != nil {
		s.log.Error("update", zap.String("user", rec.UserID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.log.Info("updated", zap.String("user", rec.UserID))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	err := s.st.Delete(user)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete", zap.String("user", user), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.log.Info("deleted", zap.String("user", user))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) parseRecord(w http.ResponseWriter, r *http.Request) (*packet.KeyRecord, []byte, bool) {
	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, nil, false
	}
	rec, err := packet.Parse(raw)
	if err != nil {
		http.Error(w, "malformed record", http.StatusBadRequest)
		return nil, nil, false
	}
	return rec, raw, true
}
