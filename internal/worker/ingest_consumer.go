package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"graphloom/internal/extract"
	"graphloom/internal/graph"
	"graphloom/internal/knowledge"
	"graphloom/internal/middleware"
	"graphloom/internal/text"
)

var ErrEmptyContent = errors.New("no content extracted from document")

type DocumentUpdater interface {
	UpdateStatus(ctx context.Context, id, status, lastError string) error
	SetProcessed(ctx context.Context, id string, chunkCount int) error
}

type BlobGetter interface {
	Get(ctx context.Context, locator string) ([]byte, error)
}

type ContentExtractor interface {
	Extract(ctx context.Context, modality extract.Modality, data []byte, filename, mimeType string) ([]extract.ContentItem, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChunkStore interface {
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	BatchStoreChunks(ctx context.Context, chunks []knowledge.Chunk, batchSize int) error
}

type GraphProcessor interface {
	ProcessChunks(ctx context.Context, chunks []knowledge.Chunk) (graph.Result, error)
}

// IngestOptions tune the pipeline; zero values fall back to the same defaults
// config ships with.
type IngestOptions struct {
	ChunkMaxTokens int
	ChunkOverlap   int
	ChunkBatchSize int
	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration
	GraphEnabled   bool
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.ChunkMaxTokens <= 0 {
		o.ChunkMaxTokens = 800
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.ChunkBatchSize <= 0 {
		o.ChunkBatchSize = 100
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 300 * time.Second
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 60 * time.Second
	}
	return o
}

// IngestConsumer drives the full pipeline for one document per message:
// fetch from the blob store, extract per modality, segment, embed, replace
// the document's chunks, then run graph extraction.
type IngestConsumer struct {
	documents DocumentUpdater
	blobs     BlobGetter
	extractor ContentExtractor
	embedder  Embedder
	store     ChunkStore
	grapher   GraphProcessor
	opts      IngestOptions
}

func NewIngestConsumer(d DocumentUpdater, b BlobGetter, x ContentExtractor, e Embedder, s ChunkStore, g GraphProcessor, opts IngestOptions) *IngestConsumer {
	return &IngestConsumer{
		documents: d,
		blobs:     b,
		extractor: x,
		embedder:  e,
		store:     s,
		grapher:   g,
		opts:      opts.withDefaults(),
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.DocumentID == "" || payload.Locator == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "document_id", payload.DocumentID, "locator", payload.Locator)
		return nil
	}

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, "processing", ""); err != nil {
		slog.ErrorContext(ctx, "failed to mark document processing", "document_id", payload.DocumentID, "error", err)
		return err // Retry
	}

	if err := h.process(ctx, payload); err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "document_id", payload.DocumentID, "error", err)
		if uerr := h.documents.UpdateStatus(ctx, payload.DocumentID, "failed", err.Error()); uerr != nil {
			slog.ErrorContext(ctx, "failed to mark document failed", "document_id", payload.DocumentID, "error", uerr)
		}
		// Failure is recorded on the document; requeueing would double-process.
		return nil
	}

	return nil
}

func (h *IngestConsumer) process(ctx context.Context, payload IngestTaskPayload) error {
	data, err := h.blobs.Get(ctx, payload.Locator)
	if err != nil {
		return fmt.Errorf("fetch document content: %w", err)
	}

	modality := extract.Modality(payload.Modality)
	if payload.Modality == "" {
		m, merr := extract.ResolveModality(payload.Name)
		if merr != nil {
			return merr
		}
		modality = m
	}

	extractCtx, cancel := context.WithTimeout(ctx, h.opts.ExtractTimeout)
	items, err := h.extractor.Extract(extractCtx, modality, data, payload.Name, payload.MimeType)
	cancel()
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}

	chunks := h.buildChunks(payload.DocumentID, items)
	if len(chunks) == 0 {
		return ErrEmptyContent
	}

	for i := range chunks {
		h.embedChunk(ctx, &chunks[i])
	}

	// Delete-then-insert makes re-ingestion idempotent.
	if err := h.store.DeleteChunksByDocument(ctx, payload.DocumentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if err := h.store.BatchStoreChunks(ctx, chunks, h.opts.ChunkBatchSize); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	if err := h.documents.SetProcessed(ctx, payload.DocumentID, len(chunks)); err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}
	slog.InfoContext(ctx, "document processed", "document_id", payload.DocumentID, "chunks", len(chunks))

	// Graph extraction runs after the document is already processed; its
	// failure never fails the ingestion.
	if h.opts.GraphEnabled && h.grapher != nil {
		res, gerr := h.grapher.ProcessChunks(ctx, chunks)
		if gerr != nil {
			slog.WarnContext(ctx, "graph extraction failed", "document_id", payload.DocumentID, "error", gerr)
		} else {
			slog.InfoContext(ctx, "graph extraction completed",
				"document_id", payload.DocumentID,
				"entities_created", res.EntitiesCreated,
				"relations_created", res.RelationsCreated)
		}
	}

	return nil
}

// buildChunks turns extracted content items into chunk records with a single
// monotonically increasing index across the whole document. Pre-segmented and
// non-text items map one-to-one; plain text items run through the token
// segmenter.
func (h *IngestConsumer) buildChunks(documentID string, items []extract.ContentItem) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	index := 0

	appendChunk := func(content string, tokens int, item extract.ContentItem) {
		chunks = append(chunks, knowledge.Chunk{
			ID:           uuid.New().String(),
			DocumentID:   documentID,
			Index:        index,
			Content:      content,
			TokenCount:   tokens,
			Modality:     string(item.Type),
			StartSec:     item.StartSec,
			EndSec:       item.EndSec,
			HasTimeRange: item.HasTimeRange,
			PageIndex:    item.PageIndex,
		})
		index++
	}

	for _, item := range items {
		if item.Content == "" {
			continue
		}
		if item.Segmented || item.Type != extract.ItemText {
			appendChunk(item.Content, text.EstimateTokens(item.Content), item)
			continue
		}
		for _, piece := range text.Chunk(item.Content, h.opts.ChunkMaxTokens, h.opts.ChunkOverlap) {
			appendChunk(piece.Content, piece.TokenCount, item)
		}
	}
	return chunks
}

// embedChunk attaches a vector, degrading to an unvectored chunk on failure.
func (h *IngestConsumer) embedChunk(ctx context.Context, chunk *knowledge.Chunk) {
	embedCtx, cancel := context.WithTimeout(ctx, h.opts.EmbedTimeout)
	defer cancel()

	vec, err := h.embedder.Embed(embedCtx, chunk.Content)
	if err != nil {
		slog.WarnContext(ctx, "chunk embedding failed, storing without vector",
			"chunk_id", chunk.ID, "chunk_index", chunk.Index, "error", err)
		return
	}
	chunk.Vector = vec
}
