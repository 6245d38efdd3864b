package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"graphloom/internal/extract"
	"graphloom/internal/knowledge"
)

const extractionPrompt = `Extract the named entities and the relations between them from the text
below. Respond with a JSON object of the form:

{
  "entities": [{"name": "...", "type": "person|organization|location|event|concept|technology|product|date", "description": "..."}],
  "relations": [{"source": "...", "target": "...", "type": "UPPER_SNAKE_LABEL", "description": "..."}]
}

Relation source and target must exactly match an entity name from the same
response. Respond with the JSON object only.

Text:
%s`

// LLM generates structured output for extraction prompts.
type LLM interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Embedder attaches vectors to canonical records; failures degrade to a
// record with no vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence surface the extractor needs: normalized-name
// lookups for cross-document merge, triple lookups for relation uniqueness,
// and the contraction queries for deletion cleanup.
type Store interface {
	GetEntityByNormalizedName(ctx context.Context, normalized string) (*knowledge.Entity, error)
	CreateEntity(ctx context.Context, e knowledge.Entity) error
	UpdateEntity(ctx context.Context, e knowledge.Entity) error
	DeleteEntity(ctx context.Context, id string) error
	GetEntitiesByChunkIDs(ctx context.Context, chunkIDs []string) ([]knowledge.Entity, error)
	GetRelationByTriple(ctx context.Context, sourceID, relType, targetID string) (*knowledge.Relation, error)
	CreateRelation(ctx context.Context, r knowledge.Relation) error
	UpdateRelation(ctx context.Context, r knowledge.Relation) error
	DeleteRelation(ctx context.Context, id string) error
	GetRelationsByEntity(ctx context.Context, entityID string) ([]knowledge.Relation, error)
}

// IDFunc mints entity/relation ids. Injectable for tests.
type IDFunc func() string

type Extractor struct {
	llm           LLM
	embedder      Embedder
	store         Store
	newID         IDFunc
	concurrency   int
	minChunkChars int
}

type Option func(*Extractor)

func WithConcurrency(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

func WithMinChunkChars(n int) Option {
	return func(x *Extractor) { x.minChunkChars = n }
}

func WithIDFunc(f IDFunc) Option {
	return func(x *Extractor) { x.newID = f }
}

func NewExtractor(llm LLM, embedder Embedder, store Store, newID IDFunc, opts ...Option) *Extractor {
	x := &Extractor{
		llm:           llm,
		embedder:      embedder,
		store:         store,
		newID:         newID,
		concurrency:   4,
		minChunkChars: 50,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type llmResponse struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relations []struct {
		Source      string `json:"source"`
		Target      string `json:"target"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"relations"`
}

// extractChunk runs one extraction call and parses the JSON object out of the
// response, tolerating prose or fence wrapping.
func (x *Extractor) extractChunk(ctx context.Context, chunk knowledge.Chunk) ([]RawEntity, []RawRelation, error) {
	resp, err := x.llm.GenerateJSON(ctx, fmt.Sprintf(extractionPrompt, chunk.Content))
	if err != nil {
		return nil, nil, err
	}

	raw, ok := extract.ScanJSONObject(resp)
	if !ok {
		return nil, nil, fmt.Errorf("no JSON object in extraction response")
	}
	var parsed llmResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse extraction response: %w", err)
	}

	entities := make([]RawEntity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		if Normalize(e.Name) == "" {
			continue
		}
		entities = append(entities, RawEntity{
			Name:        e.Name,
			Type:        knowledge.CanonicalEntityType(e.Type),
			Description: e.Description,
			ChunkID:     chunk.ID,
		})
	}
	relations := make([]RawRelation, 0, len(parsed.Relations))
	for _, r := range parsed.Relations {
		relations = append(relations, RawRelation{
			Source:      r.Source,
			Target:      r.Target,
			Type:        r.Type,
			Description: r.Description,
			ChunkID:     chunk.ID,
		})
	}
	return entities, relations, nil
}

// Result reports what one document's extraction pass persisted.
type Result struct {
	EntitiesCreated  int
	RelationsCreated int
}

// ProcessChunks extracts entities and relations from the text-bearing chunks
// of one document and persists the deduplicated graph. Per-chunk extraction
// runs on a bounded worker pool; a failed chunk is logged and skipped.
// The normalized-name map is scoped to this call.
func (x *Extractor) ProcessChunks(ctx context.Context, chunks []knowledge.Chunk) (Result, error) {
	var eligible []knowledge.Chunk
	for _, c := range chunks {
		if c.TextBearing() && len(c.Content) >= x.minChunkChars {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return Result{}, nil
	}

	pool, err := ants.NewPool(x.concurrency)
	if err != nil {
		return Result{}, err
	}
	defer pool.Release()

	var (
		mu           sync.Mutex
		wg           sync.WaitGroup
		rawEntities  []RawEntity
		rawRelations []RawRelation
	)
	for _, chunk := range eligible {
		chunk := chunk
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			ents, rels, cerr := x.extractChunk(ctx, chunk)
			if cerr != nil {
				slog.WarnContext(ctx, "chunk extraction failed, skipping", "chunk_id", chunk.ID, "error", cerr)
				return
			}
			mu.Lock()
			rawEntities = append(rawEntities, ents...)
			rawRelations = append(rawRelations, rels...)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			slog.WarnContext(ctx, "failed to submit extraction task", "error", submitErr)
		}
	}
	wg.Wait()

	merged := DedupEntities(rawEntities)
	idByNorm := make(map[string]string, len(merged))

	var res Result
	for _, m := range merged {
		id, created, perr := x.persistEntity(ctx, m)
		if perr != nil {
			slog.ErrorContext(ctx, "failed to persist entity", "name", m.Name, "error", perr)
			continue
		}
		idByNorm[m.NormalizedName] = id
		if created {
			res.EntitiesCreated++
		}
	}

	// Relations follow entities: they hold foreign ids.
	for _, r := range ResolveRelations(rawRelations, idByNorm) {
		created, perr := x.persistRelation(ctx, r)
		if perr != nil {
			slog.ErrorContext(ctx, "failed to persist relation", "type", r.Type, "error", perr)
			continue
		}
		if created {
			res.RelationsCreated++
		}
	}

	return res, nil
}

// persistEntity merges with an existing record sharing the normalized name,
// or creates a new one. Embedding failure never blocks persistence.
func (x *Extractor) persistEntity(ctx context.Context, m Merged) (id string, created bool, err error) {
	existing, err := x.store.GetEntityByNormalizedName(ctx, m.NormalizedName)
	if err != nil {
		return "", false, err
	}

	if existing != nil {
		e := *existing
		e.Description = MergeDescriptions(e.Description, m.Description)
		for _, cid := range m.ChunkIDs {
			e.ChunkIDs = unionChunkIDs(e.ChunkIDs, cid)
		}
		e.Vector = x.embedEntity(ctx, e.Name, e.Description)
		if err := x.store.UpdateEntity(ctx, e); err != nil {
			return "", false, err
		}
		return e.ID, false, nil
	}

	e := knowledge.Entity{
		ID:             x.newID(),
		Name:           m.Name,
		NormalizedName: m.NormalizedName,
		Type:           m.Type,
		Description:    m.Description,
		ChunkIDs:       m.ChunkIDs,
	}
	e.Vector = x.embedEntity(ctx, e.Name, e.Description)
	if err := x.store.CreateEntity(ctx, e); err != nil {
		return "", false, err
	}
	return e.ID, true, nil
}

func (x *Extractor) embedEntity(ctx context.Context, name, description string) []float32 {
	vec, err := x.embedder.Embed(ctx, fmt.Sprintf("%s: %s", name, description))
	if err != nil {
		slog.WarnContext(ctx, "entity embedding failed, storing without vector", "name", name, "error", err)
		return nil
	}
	return vec
}

func (x *Extractor) persistRelation(ctx context.Context, r ResolvedRelation) (created bool, err error) {
	existing, err := x.store.GetRelationByTriple(ctx, r.SourceID, r.Type, r.TargetID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		rel := *existing
		for _, cid := range r.ChunkIDs {
			rel.ChunkIDs = unionChunkIDs(rel.ChunkIDs, cid)
		}
		return false, x.store.UpdateRelation(ctx, rel)
	}

	rel := knowledge.Relation{
		ID:             x.newID(),
		SourceEntityID: r.SourceID,
		TargetEntityID: r.TargetID,
		Type:           r.Type,
		Description:    r.Description,
		ChunkIDs:       r.ChunkIDs,
	}
	if vec, verr := x.embedder.Embed(ctx, fmt.Sprintf("%s: %s", rel.Type, rel.Description)); verr != nil {
		slog.WarnContext(ctx, "relation embedding failed, storing without vector", "type", rel.Type, "error", verr)
	} else {
		rel.Vector = vec
	}
	if err := x.store.CreateRelation(ctx, rel); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupAfterChunkDeletion contracts the graph after a document's chunks are
// removed: entities losing all contributing chunks are deleted along with
// every relation touching them; entities merely reduced are updated in place.
func (x *Extractor) CleanupAfterChunkDeletion(ctx context.Context, removedChunkIDs []string) error {
	if len(removedChunkIDs) == 0 {
		return nil
	}
	removed := make(map[string]bool, len(removedChunkIDs))
	for _, id := range removedChunkIDs {
		removed[id] = true
	}

	affected, err := x.store.GetEntitiesByChunkIDs(ctx, removedChunkIDs)
	if err != nil {
		return err
	}

	for _, e := range affected {
		var remaining []string
		for _, cid := range e.ChunkIDs {
			if !removed[cid] {
				remaining = append(remaining, cid)
			}
		}

		if len(remaining) > 0 {
			e.ChunkIDs = remaining
			if err := x.store.UpdateEntity(ctx, e); err != nil {
				slog.ErrorContext(ctx, "failed to contract entity", "entity_id", e.ID, "error", err)
			}
			continue
		}

		rels, rerr := x.store.GetRelationsByEntity(ctx, e.ID)
		if rerr != nil {
			slog.ErrorContext(ctx, "failed to list relations for entity", "entity_id", e.ID, "error", rerr)
		} else {
			for _, rel := range rels {
				if derr := x.store.DeleteRelation(ctx, rel.ID); derr != nil {
					slog.ErrorContext(ctx, "failed to delete relation", "relation_id", rel.ID, "error", derr)
				}
			}
		}
		if derr := x.store.DeleteEntity(ctx, e.ID); derr != nil {
			slog.ErrorContext(ctx, "failed to delete entity", "entity_id", e.ID, "error", derr)
		}
	}

	return nil
}
