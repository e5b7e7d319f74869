// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/evfinkn/speechviz-sub000/services/annotate"
)

// className is the Weaviate class holding transcript chunks.
const className = "TranscriptChunk"

// Chunking bounds for long transcripts. Most segment transcripts fit in
// one chunk; the splitter only matters for merged or auto-joined text.
const (
	chunkSize    = 1000
	chunkOverlap = 100
)

// Index stores transcript chunks per document and answers BM25 queries.
// It satisfies the service's Searcher interface.
type Index struct {
	client *Client
	logger *slog.Logger

	schemaOnce sync.Once
	schemaErr  error
}

// NewIndex creates a transcript index over the given client.
func NewIndex(client *Client, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		client: client,
		logger: logger.With("component", "transcript_index"),
	}
}

// ensureSchema creates the TranscriptChunk class if it does not exist.
// Chunks are keyword-searched only, so no vectorizer is configured.
func (ix *Index) ensureSchema(ctx context.Context) error {
	ix.schemaOnce.Do(func() {
		ix.schemaErr = ix.client.Execute(ctx, "ensure_schema", func() error {
			exists, err := ix.client.Weaviate().Schema().
				ClassExistenceChecker().
				WithClassName(className).
				Do(ctx)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			class := &models.Class{
				Class:      className,
				Vectorizer: "none",
				Properties: []*models.Property{
					{Name: "text", DataType: []string{"text"}},
					{Name: "document", DataType: []string{"text"}},
					{Name: "segmentId", DataType: []string{"text"}},
					{Name: "startTime", DataType: []string{"number"}},
					{Name: "endTime", DataType: []string{"number"}},
				},
			}
			return ix.client.Weaviate().Schema().
				ClassCreator().
				WithClass(class).
				Do(ctx)
		})
	})
	return ix.schemaErr
}

// IndexDocument replaces the document's chunks with the given segments.
// Long transcripts are split into overlapping chunks; every chunk gets a
// deterministic id so re-indexing overwrites instead of accumulating.
func (ix *Index) IndexDocument(ctx context.Context, document string, segments []annotate.TranscriptSegment) error {
	if err := ix.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	// Drop the previous generation of chunks for this document.
	where := filters.Where().
		WithPath([]string{"document"}).
		WithOperator(filters.Equal).
		WithValueText(document)
	err := ix.client.Execute(ctx, "delete_chunks", func() error {
		_, err := ix.client.Weaviate().Batch().
			ObjectsBatchDeleter().
			WithClassName(className).
			WithWhere(where).
			Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	var objects []*models.Object
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		chunks, err := splitter.SplitText(seg.Text)
		if err != nil {
			ix.logger.Warn("transcript split failed, indexing whole",
				"segment", seg.ID, "error", err)
			chunks = []string{seg.Text}
		}
		for i, chunk := range chunks {
			objects = append(objects, &models.Object{
				Class: className,
				ID:    strfmt.UUID(chunkID(document, seg.ID, i)),
				Properties: map[string]interface{}{
					"text":      chunk,
					"document":  document,
					"segmentId": seg.ID,
					"startTime": seg.Start,
					"endTime":   seg.End,
				},
			})
		}
	}
	if len(objects) == 0 {
		return nil
	}

	err = ix.client.Execute(ctx, "index_chunks", func() error {
		resp, err := ix.client.Weaviate().Batch().
			ObjectsBatcher().
			WithObjects(objects...).
			Do(ctx)
		if err != nil {
			return err
		}
		for _, item := range resp {
			if item.Result == nil || item.Result.Errors == nil {
				continue
			}
			for _, e := range item.Result.Errors.Error {
				ix.logger.Warn("batch item failed",
					"document", document, "error", e.Message)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	ix.logger.Info("document indexed",
		"document", document, "chunks", len(objects))
	return nil
}

// Query runs a BM25 keyword search over the document's chunks.
func (ix *Index) Query(ctx context.Context, document, query string, limit int) ([]annotate.SearchHit, error) {
	if err := ix.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	bm25 := (&graphql.BM25ArgumentBuilder{}).
		WithQuery(query).
		WithProperties("text")
	where := filters.Where().
		WithPath([]string{"document"}).
		WithOperator(filters.Equal).
		WithValueText(document)
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "segmentId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}

	var result *models.GraphQLResponse
	err := ix.client.Execute(ctx, "query", func() error {
		var err error
		result, err = ix.client.Weaviate().GraphQL().Get().
			WithClassName(className).
			WithBM25(bm25).
			WithWhere(where).
			WithLimit(limit).
			WithFields(fields...).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("graphql: %s", result.Errors[0].Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseHits(result), nil
}

// parseHits walks the nested GraphQL response into flat hits. Anything
// with an unexpected shape is skipped.
func parseHits(result *models.GraphQLResponse) []annotate.SearchHit {
	hits := []annotate.SearchHit{}
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return hits
	}
	rows, ok := get[className].([]interface{})
	if !ok {
		return hits
	}
	for _, row := range rows {
		item, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		hit := annotate.SearchHit{}
		if text, ok := item["text"].(string); ok {
			hit.Text = text
		}
		if id, ok := item["segmentId"].(string); ok {
			hit.SegmentID = id
		}
		if add, ok := item["_additional"].(map[string]interface{}); ok {
			hit.Score = parseScore(add["score"])
		}
		hits = append(hits, hit)
	}
	return hits
}

// parseScore handles the score field, which Weaviate returns as a string.
func parseScore(v interface{}) float64 {
	switch s := v.(type) {
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return s
	default:
		return 0
	}
}

// chunkID derives a stable uuid from the document, segment and chunk
// position, so re-indexing the same content is an upsert.
func chunkID(document, segmentID string, chunk int) string {
	hash := sha256.Sum256([]byte(document + "\x00" + segmentID + "\x00" + strconv.Itoa(chunk)))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}
