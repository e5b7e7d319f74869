// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists annotation documents in an embedded BadgerDB.
//
// Each document lives under one key (doc:<name>) holding the imported
// source annotations, the latest save payload, and bookkeeping metadata.
// The store is the durable half of the session service: sessions load
// from it on open and write back on save.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// docPrefix namespaces document keys inside the database.
const docPrefix = "doc:"

// maxNameLength caps document names.
const maxNameLength = 128

// validNamePattern defines valid document names: a leading alphanumeric
// followed by alphanumerics, dots, underscores and hyphens.
var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Document is the persisted form of one annotation document.
type Document struct {
	// Name identifies the document and is its storage key.
	Name string `json:"name"`

	// FormatVersion is the declared version of the source annotations.
	FormatVersion string `json:"formatVersion,omitempty"`

	// Annotations holds the imported source document, byte for byte, so a
	// session can rebuild its base tree at any time.
	Annotations json.RawMessage `json:"annotations,omitempty"`

	// Saved holds the most recent save payload.
	Saved json.RawMessage `json:"saved,omitempty"`

	// ModifiedAt is when the document was last written. Set by Put.
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Info is the listing form of a document, without its payloads.
type Info struct {
	Name          string    `json:"name"`
	FormatVersion string    `json:"formatVersion,omitempty"`
	ModifiedAt    time.Time `json:"modifiedAt"`
	HasSaved      bool      `json:"hasSaved"`
}

// Config holds configuration for a document store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites makes every write durable before returning.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs.
	// Zero disables collection. Ignored for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage fraction that triggers a
	// value log rewrite.
	GCDiscardRatio float64

	// Logger receives store and database logs.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes and a
// five-minute GC interval.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk
// I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store persists annotation documents.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	gcRatio   float64
	stopGC    chan struct{}
	doneGC    chan struct{}
	closeOnce sync.Once
}

// Open opens a document store with the given configuration. Callers must
// Close the store when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	// Documents are whole-value overwrites; old versions are never read.
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:      db,
		logger:  logger,
		gcRatio: cfg.GCDiscardRatio,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.gcLoop(cfg.GCInterval)
	}
	return s, nil
}

// Close stops garbage collection and closes the database. Safe to call
// multiple times; only the first call does the work.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.doneGC
		}
		err = s.db.Close()
	})
	return err
}

// Put writes the document under its name, stamping ModifiedAt.
func (s *Store) Put(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if doc == nil {
		return errors.New("document must not be nil")
	}
	if err := validateName(doc.Name); err != nil {
		return err
	}

	stored := *doc
	stored.ModifiedAt = time.Now().UTC()
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.Name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(doc.Name), data)
	})
	if err != nil {
		return fmt.Errorf("put document %s: %w", doc.Name, err)
	}
	doc.ModifiedAt = stored.ModifiedAt
	s.logger.Debug("document stored", "document", doc.Name, "bytes", len(data))
	return nil
}

// Get reads the document stored under name. It returns ErrNotFound when
// no such document exists.
func (s *Store) Get(ctx context.Context, name string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("document %s: %w", name, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the document stored under name. It returns ErrNotFound
// when no such document exists.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := validateName(name); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := docKey(name)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("document %s: %w", name, ErrNotFound)
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("document deleted", "document", name)
	return nil
}

// List returns every stored document's metadata, sorted by name.
// Payloads are not loaded into the result.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var doc Document
				if err := json.Unmarshal(val, &doc); err != nil {
					s.logger.Warn("skipping undecodable document",
						"key", string(item.Key()), "error", err)
					return nil
				}
				infos = append(infos, Info{
					Name:          doc.Name,
					FormatVersion: doc.FormatVersion,
					ModifiedAt:    doc.ModifiedAt,
					HasSaved:      len(doc.Saved) > 0,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			err := s.db.RunValueLogGC(s.gcRatio)
			if err == nil {
				s.logger.Debug("store value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("store value log GC error", "error", err)
			}
		}
	}
}

func docKey(name string) []byte {
	return []byte(docPrefix + name)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if !validNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
