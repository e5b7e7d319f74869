// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{
		Name:          "interview-01",
		FormatVersion: "v2.0.0",
		Annotations:   json.RawMessage(`[["Speakers", [], null]]`),
		Saved:         json.RawMessage(`{"formatVersion": "v2.0.0", "segments": []}`),
	}
	before := time.Now().UTC()
	require.NoError(t, s.Put(ctx, doc))
	assert.False(t, doc.ModifiedAt.Before(before), "Put should stamp ModifiedAt")

	got, err := s.Get(ctx, "interview-01")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.FormatVersion, got.FormatVersion)
	assert.JSONEq(t, string(doc.Annotations), string(got.Annotations))
	assert.JSONEq(t, string(doc.Saved), string(got.Saved))
	assert.True(t, got.ModifiedAt.Equal(doc.ModifiedAt))
}

func TestStore_PutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{Name: "meeting", Annotations: json.RawMessage(`[]`)}
	require.NoError(t, s.Put(ctx, doc))

	doc.Saved = json.RawMessage(`{"formatVersion": "v2.0.0", "segments": []}`)
	require.NoError(t, s.Put(ctx, doc))

	got, err := s.Get(ctx, "meeting")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Saved)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "no-such-doc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_InvalidNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		docName string
	}{
		{name: "empty", docName: ""},
		{name: "path traversal", docName: "../evil"},
		{name: "slash", docName: "a/b"},
		{name: "leading dot", docName: ".hidden"},
		{name: "too long", docName: strings.Repeat("a", maxNameLength+1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Put(ctx, &Document{Name: tc.docName})
			assert.ErrorIs(t, err, ErrInvalidName)

			_, err = s.Get(ctx, tc.docName)
			assert.ErrorIs(t, err, ErrInvalidName)

			err = s.Delete(ctx, tc.docName)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestStore_ListSortedWithSavedFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Document{
		Name:        "zulu",
		Annotations: json.RawMessage(`[]`),
		Saved:       json.RawMessage(`{"formatVersion": "v2.0.0"}`),
	}))
	require.NoError(t, s.Put(ctx, &Document{
		Name:          "alpha",
		FormatVersion: "v1.0.0",
		Annotations:   json.RawMessage(`[]`),
	}))

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "v1.0.0", infos[0].FormatVersion)
	assert.False(t, infos[0].HasSaved)
	assert.Equal(t, "zulu", infos[1].Name)
	assert.True(t, infos[1].HasSaved)
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(t)

	infos, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Document{Name: "scratch"}))
	require.NoError(t, s.Delete(ctx, "scratch"))

	_, err := s.Get(ctx, "scratch")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, "scratch")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Path: dir, SyncWrites: true}
	ctx := context.Background()

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &Document{
		Name:        "persistent",
		Annotations: json.RawMessage(`[["Words", [], null]]`),
	}))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(ctx, "persistent")
	require.NoError(t, err)
	assert.JSONEq(t, `[["Words", [], null]]`, string(got.Annotations))
}

func TestStore_PersistentRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Put(ctx, &Document{Name: "doc"}))
	_, err := s.Get(ctx, "doc")
	assert.Error(t, err)
	assert.Error(t, s.Delete(ctx, "doc"))
	_, err = s.List(ctx)
	assert.Error(t, err)
}
