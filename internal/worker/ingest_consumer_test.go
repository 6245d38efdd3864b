package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"graphloom/internal/extract"
	"graphloom/internal/graph"
	"graphloom/internal/knowledge"
	"graphloom/internal/worker"
)

type MockDocuments struct{ mock.Mock }

func (m *MockDocuments) UpdateStatus(ctx context.Context, id, status, lastError string) error {
	return m.Called(ctx, id, status, lastError).Error(0)
}

func (m *MockDocuments) SetProcessed(ctx context.Context, id string, chunkCount int) error {
	return m.Called(ctx, id, chunkCount).Error(0)
}

type MockBlobs struct{ mock.Mock }

func (m *MockBlobs) Get(ctx context.Context, locator string) ([]byte, error) {
	args := m.Called(ctx, locator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, modality extract.Modality, data []byte, filename, mimeType string) ([]extract.ContentItem, error) {
	args := m.Called(ctx, modality, data, filename, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]extract.ContentItem), args.Error(1)
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChunkStore struct{ mock.Mock }

func (m *MockChunkStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *MockChunkStore) BatchStoreChunks(ctx context.Context, chunks []knowledge.Chunk, batchSize int) error {
	return m.Called(ctx, chunks, batchSize).Error(0)
}

type MockGrapher struct{ mock.Mock }

func (m *MockGrapher) ProcessChunks(ctx context.Context, chunks []knowledge.Chunk) (graph.Result, error) {
	args := m.Called(ctx, chunks)
	return args.Get(0).(graph.Result), args.Error(1)
}

func newConsumer(d *MockDocuments, b *MockBlobs, x *MockExtractor, e *MockEmbedder, s *MockChunkStore, g *MockGrapher) *worker.IngestConsumer {
	return worker.NewIngestConsumer(d, b, x, e, s, g, worker.IngestOptions{
		ChunkMaxTokens: 800,
		ChunkOverlap:   100,
		ChunkBatchSize: 100,
		GraphEnabled:   true,
	})
}

func message(t *testing.T, payload worker.IngestTaskPayload) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &nsq.Message{Body: body}
}

func TestIngestConsumer_HappyPath(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)
	e := new(MockEmbedder)
	s := new(MockChunkStore)
	g := new(MockGrapher)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("file bytes"), nil)
	x.On("Extract", mock.Anything, extract.ModalityText, []byte("file bytes"), "notes.md", "text/markdown").
		Return([]extract.ContentItem{{Type: extract.ItemText, Content: "Plain paragraph one.\n\nPlain paragraph two."}}, nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	s.On("DeleteChunksByDocument", mock.Anything, "doc1").Return(nil)
	s.On("BatchStoreChunks", mock.Anything, mock.MatchedBy(func(chunks []knowledge.Chunk) bool {
		return len(chunks) == 1 &&
			chunks[0].DocumentID == "doc1" &&
			chunks[0].Index == 0 &&
			chunks[0].Modality == "text" &&
			len(chunks[0].Vector) == 2
	}), 100).Return(nil)
	d.On("SetProcessed", mock.Anything, "doc1", 1).Return(nil)
	g.On("ProcessChunks", mock.Anything, mock.Anything).Return(graph.Result{EntitiesCreated: 2}, nil)

	c := newConsumer(d, b, x, e, s, g)
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "notes.md", Locator: "loc1", Modality: "text", MimeType: "text/markdown",
	}))

	assert.NoError(t, err)
	d.AssertExpectations(t)
	s.AssertExpectations(t)
	g.AssertExpectations(t)
}

func TestIngestConsumer_PoisonPill(t *testing.T) {
	c := newConsumer(new(MockDocuments), new(MockBlobs), new(MockExtractor), new(MockEmbedder), new(MockChunkStore), new(MockGrapher))

	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("not json")}))
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: nil}))
}

func TestIngestConsumer_MissingFieldsDropped(t *testing.T) {
	d := new(MockDocuments)
	c := newConsumer(d, new(MockBlobs), new(MockExtractor), new(MockEmbedder), new(MockChunkStore), new(MockGrapher))

	err := c.HandleMessage(message(t, worker.IngestTaskPayload{DocumentID: "", Locator: ""}))
	assert.NoError(t, err)
	d.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestConsumer_EmptyContentFails(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("bytes"), nil)
	x.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]extract.ContentItem{{Type: extract.ItemText, Content: ""}}, nil)
	d.On("UpdateStatus", mock.Anything, "doc1", "failed", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	c := newConsumer(d, b, x, new(MockEmbedder), new(MockChunkStore), new(MockGrapher))
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "a.txt", Locator: "loc1", Modality: "text",
	}))

	assert.NoError(t, err, "failure is recorded on the document, not requeued")
	d.AssertExpectations(t)
}

func TestIngestConsumer_BlobFetchFailureMarksFailed(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return(nil, errors.New("blob missing"))
	d.On("UpdateStatus", mock.Anything, "doc1", "failed", mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "blob missing")
	})).Return(nil)

	c := newConsumer(d, b, new(MockExtractor), new(MockEmbedder), new(MockChunkStore), new(MockGrapher))
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "a.txt", Locator: "loc1", Modality: "text",
	}))

	assert.NoError(t, err)
	d.AssertExpectations(t)
}

func TestIngestConsumer_EmbeddingFailureDegrades(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)
	e := new(MockEmbedder)
	s := new(MockChunkStore)
	g := new(MockGrapher)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("bytes"), nil)
	x.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]extract.ContentItem{{Type: extract.ItemText, Content: "Some content."}}, nil)
	e.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))
	s.On("DeleteChunksByDocument", mock.Anything, "doc1").Return(nil)
	s.On("BatchStoreChunks", mock.Anything, mock.MatchedBy(func(chunks []knowledge.Chunk) bool {
		return len(chunks) == 1 && chunks[0].Vector == nil
	}), 100).Return(nil)
	d.On("SetProcessed", mock.Anything, "doc1", 1).Return(nil)
	g.On("ProcessChunks", mock.Anything, mock.Anything).Return(graph.Result{}, nil)

	c := newConsumer(d, b, x, e, s, g)
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "a.txt", Locator: "loc1", Modality: "text",
	}))

	assert.NoError(t, err)
	s.AssertExpectations(t)
}

func TestIngestConsumer_GraphFailureIsNonFatal(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)
	e := new(MockEmbedder)
	s := new(MockChunkStore)
	g := new(MockGrapher)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("bytes"), nil)
	x.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]extract.ContentItem{{Type: extract.ItemText, Content: "Some content."}}, nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	s.On("DeleteChunksByDocument", mock.Anything, "doc1").Return(nil)
	s.On("BatchStoreChunks", mock.Anything, mock.Anything, 100).Return(nil)
	d.On("SetProcessed", mock.Anything, "doc1", 1).Return(nil)
	g.On("ProcessChunks", mock.Anything, mock.Anything).Return(graph.Result{}, errors.New("graph store down"))

	c := newConsumer(d, b, x, e, s, g)
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "a.txt", Locator: "loc1", Modality: "text",
	}))

	assert.NoError(t, err, "document already processed; graph failure only logged")
	d.AssertNotCalled(t, "UpdateStatus", mock.Anything, "doc1", "failed", mock.Anything)
}

func TestIngestConsumer_SegmentedItemsMapOneToOne(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)
	e := new(MockEmbedder)
	s := new(MockChunkStore)
	g := new(MockGrapher)

	items := []extract.ContentItem{
		{Type: extract.ItemText, Content: "Overview of the video."},
		{Type: extract.ItemVideoSegment, Content: "Segment one.", StartSec: 0, EndSec: 30, HasTimeRange: true, Segmented: true},
		{Type: extract.ItemVideoSegment, Content: "Segment two.", StartSec: 30, EndSec: 60, HasTimeRange: true, Segmented: true},
	}

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("vid"), nil)
	x.On("Extract", mock.Anything, extract.ModalityVideo, mock.Anything, mock.Anything, mock.Anything).Return(items, nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	s.On("DeleteChunksByDocument", mock.Anything, "doc1").Return(nil)
	s.On("BatchStoreChunks", mock.Anything, mock.MatchedBy(func(chunks []knowledge.Chunk) bool {
		if len(chunks) != 3 {
			return false
		}
		// Monotonic index across item kinds, metadata carried through.
		return chunks[0].Index == 0 && chunks[0].Modality == "text" &&
			chunks[1].Index == 1 && chunks[1].Modality == "video_segment" && chunks[1].HasTimeRange &&
			chunks[2].Index == 2 && chunks[2].EndSec == 60
	}), 100).Return(nil)
	d.On("SetProcessed", mock.Anything, "doc1", 3).Return(nil)
	g.On("ProcessChunks", mock.Anything, mock.Anything).Return(graph.Result{}, nil)

	c := newConsumer(d, b, x, e, s, g)
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "demo.mp4", Locator: "loc1", Modality: "video",
	}))

	assert.NoError(t, err)
	s.AssertExpectations(t)
}

func TestIngestConsumer_UnsupportedModalityFails(t *testing.T) {
	d := new(MockDocuments)
	b := new(MockBlobs)
	x := new(MockExtractor)

	d.On("UpdateStatus", mock.Anything, "doc1", "processing", "").Return(nil)
	b.On("Get", mock.Anything, "loc1").Return([]byte("zip"), nil)
	x.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, extract.ErrUnsupported)
	d.On("UpdateStatus", mock.Anything, "doc1", "failed", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	c := newConsumer(d, b, x, new(MockEmbedder), new(MockChunkStore), new(MockGrapher))
	err := c.HandleMessage(message(t, worker.IngestTaskPayload{
		DocumentID: "doc1", Name: "a.bin", Locator: "loc1", Modality: "archive",
	}))

	assert.NoError(t, err)
	d.AssertExpectations(t)
}
