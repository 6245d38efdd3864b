package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"graphloom/internal/config"
	"graphloom/internal/extract"
	"graphloom/internal/knowledge"
	"graphloom/internal/middleware"
	"graphloom/internal/worker"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

var ErrDuplicate = fmt.Errorf("duplicate document")

type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Modality    string `json:"modality"`
	MimeType    string `json:"mime_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	Locator     string `json:"-"`
	ContentHash string `json:"-"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status, lastError string) error
	SetProcessed(ctx context.Context, id string, chunkCount int) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type ChunkStore interface {
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]knowledge.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}

// chunkFetchLimit bounds per-document chunk listings; documents above this are
// far past anything the pipeline produces.
const chunkFetchLimit = 10000

type BlobStore interface {
	Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, locator string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// GraphCleaner contracts the knowledge graph when a document's chunks go away.
type GraphCleaner interface {
	CleanupAfterChunkDeletion(ctx context.Context, removedChunkIDs []string) error
}

type Service struct {
	repo    Repository
	pub     EventPublisher
	chunks  ChunkStore
	blobs   BlobStore
	cleaner GraphCleaner
}

func NewService(repo Repository, pub EventPublisher, chunks ChunkStore, blobs BlobStore, cleaner GraphCleaner) *Service {
	return &Service{repo: repo, pub: pub, chunks: chunks, blobs: blobs, cleaner: cleaner}
}

// Upload registers a new document: content-hash dedup, blob store write,
// pending row, then the ingest task. The pipeline itself runs on the worker.
func (s *Service) Upload(ctx context.Context, name string, content []byte, mimeType string) (*Document, error) {
	modality, err := extract.ResolveModality(name)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(content)
	hashStr := fmt.Sprintf("%x", hash)

	exists, err := s.repo.ExistsByHash(ctx, hashStr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	locator := fmt.Sprintf("%s_%s", uuid.New().String(), name)
	if err := s.blobs.Put(ctx, locator, bytes.NewReader(content), int64(len(content)), mimeType); err != nil {
		return nil, fmt.Errorf("store document content: %w", err)
	}

	doc := &Document{
		Name:        name,
		Modality:    string(modality),
		MimeType:    mimeType,
		SizeBytes:   int64(len(content)),
		Locator:     locator,
		ContentHash: hashStr,
		Status:      StatusPending,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		if derr := s.blobs.Delete(ctx, locator); derr != nil {
			slog.WarnContext(ctx, "failed to clean up blob after save failure", "locator", locator, "error", derr)
		}
		return nil, err
	}

	s.publishIngestTask(ctx, doc)
	return doc, nil
}

func (s *Service) publishIngestTask(ctx context.Context, doc *Document) {
	payload, _ := json.Marshal(worker.IngestTaskPayload{
		DocumentID:    doc.ID,
		Name:          doc.Name,
		Locator:       doc.Locator,
		Modality:      doc.Modality,
		MimeType:      doc.MimeType,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.task event", "document_id", doc.ID, "error", err)
	} else {
		slog.InfoContext(ctx, "published ingest.task event", "document_id", doc.ID, "name", doc.Name)
	}
}

type Detail struct {
	Document
	Chunks      []knowledge.Chunk `json:"chunks"`
	TotalChunks int               `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunks.GetChunksByDocument(ctx, id, chunkFetchLimit)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch chunks", "document_id", id, "error", err)
		chunks = []knowledge.Chunk{}
	}

	return &Detail{
		Document:    *doc,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete removes a document and everything derived from it: vector-store
// chunks, orphaned graph nodes, the stored blob, then the soft-deleted row.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	chunks, err := s.chunks.GetChunksByDocument(ctx, id, chunkFetchLimit)
	if err != nil {
		slog.WarnContext(ctx, "failed to list chunks before delete", "document_id", id, "error", err)
	}

	if err := s.chunks.DeleteChunksByDocument(ctx, id); err != nil {
		return err
	}

	if s.cleaner != nil && len(chunks) > 0 {
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := s.cleaner.CleanupAfterChunkDeletion(ctx, ids); err != nil {
			slog.ErrorContext(ctx, "graph cleanup failed", "document_id", id, "error", err)
		}
	}

	if err := s.blobs.Delete(ctx, doc.Locator); err != nil {
		slog.WarnContext(ctx, "failed to delete stored content", "locator", doc.Locator, "error", err)
	}

	return s.repo.SoftDelete(ctx, id)
}

// Reingest re-runs the pipeline for an already stored document. The worker
// replaces the chunk set atomically per document, so repeating is safe.
func (s *Service) Reingest(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusPending, ""); err != nil {
		return err
	}

	s.publishIngestTask(ctx, doc)
	return nil
}
