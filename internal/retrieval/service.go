package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"graphloom/internal/knowledge"
)

// Mode selects one of the five retrieval strategies.
type Mode string

const (
	ModeNaive  Mode = "naive"
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
	ModeMix    Mode = "mix"
)

// ParseMode validates a mode string; empty defaults to mix, the richest mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNaive, ModeLocal, ModeGlobal, ModeHybrid, ModeMix:
		return Mode(s), nil
	case "":
		return ModeMix, nil
	}
	return "", fmt.Errorf("unknown retrieval mode %q", s)
}

// EvidenceSet is the combined result of one retrieval call. Every item
// carries a similarity score at or above the configured floor. Order within
// each slice is stable insertion order from the underlying index scans.
type EvidenceSet struct {
	Chunks    []knowledge.Chunk    `json:"chunks"`
	Entities  []knowledge.Entity   `json:"entities"`
	Relations []knowledge.Relation `json:"relations"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the similarity-search primitive plus the id-set expansions
// all five modes compose from.
type VectorStore interface {
	SearchChunks(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Chunk, error)
	SearchEntities(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Entity, error)
	SearchRelations(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Relation, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]knowledge.Chunk, error)
	GetEntitiesByIDs(ctx context.Context, ids []string) ([]knowledge.Entity, error)
}

// Options carry the retrieval defaults from config.
type Options struct {
	Threshold  float32 // minimum similarity, results below are never returned
	TopK       int     // default chunk result budget
	EntityTopK int     // wider budget for entity/relation searches in graph modes
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = 0.3
	}
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.EntityTopK <= 0 {
		o.EntityTopK = 20
	}
	return o
}

type Service struct {
	embedder Embedder
	store    VectorStore
	opts     Options
	logger   *QueryLogger
}

func NewService(e Embedder, s VectorStore, opts Options, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, opts: opts.withDefaults(), logger: l}
}

// Retrieve embeds the query once and executes the requested strategy.
func (s *Service) Retrieve(ctx context.Context, query string, mode Mode, topK int) (*EvidenceSet, error) {
	start := time.Now()
	if topK <= 0 {
		topK = s.opts.TopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var ev *EvidenceSet
	switch mode {
	case ModeNaive:
		ev, err = s.naive(ctx, vec, topK)
	case ModeLocal:
		ev, err = s.local(ctx, vec, topK)
	case ModeGlobal:
		ev, err = s.global(ctx, vec, topK)
	case ModeHybrid:
		ev, err = s.hybrid(ctx, vec, topK)
	case ModeMix, "":
		ev, err = s.mix(ctx, vec, topK)
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:        query,
			Mode:         string(mode),
			NumChunks:    len(ev.Chunks),
			NumEntities:  len(ev.Entities),
			NumRelations: len(ev.Relations),
			Duration:     time.Since(start),
		})
	}
	return ev, nil
}

// naive: vector-search chunks directly.
func (s *Service) naive(ctx context.Context, vec []float32, topK int) (*EvidenceSet, error) {
	chunks, err := s.store.SearchChunks(ctx, vec, s.opts.Threshold, topK)
	if err != nil {
		return nil, err
	}
	return &EvidenceSet{Chunks: applyFloorChunks(chunks, s.opts.Threshold)}, nil
}

// local: vector-search entities, then expand through their contributing-chunk
// sets. Each chunk inherits the owning entity's similarity.
func (s *Service) local(ctx context.Context, vec []float32, topK int) (*EvidenceSet, error) {
	entities, err := s.store.SearchEntities(ctx, vec, s.opts.Threshold, s.opts.EntityTopK)
	if err != nil {
		return nil, err
	}
	entities = applyFloorEntities(entities, s.opts.Threshold)

	chunks, err := s.expandViaEntities(ctx, entities)
	if err != nil {
		return nil, err
	}
	return &EvidenceSet{Chunks: chunks, Entities: entities}, nil
}

// global: vector-search relations, resolve their endpoint entities, then
// expand through those entities' chunk sets.
func (s *Service) global(ctx context.Context, vec []float32, topK int) (*EvidenceSet, error) {
	relations, err := s.store.SearchRelations(ctx, vec, s.opts.Threshold, s.opts.EntityTopK)
	if err != nil {
		return nil, err
	}
	relations = applyFloorRelations(relations, s.opts.Threshold)
	if len(relations) == 0 {
		return &EvidenceSet{}, nil
	}

	// Endpoint entities inherit the best score among the relations that
	// reference them, preserving relation scan order.
	var entityIDs []string
	scoreByID := make(map[string]float32)
	for _, r := range relations {
		for _, id := range []string{r.SourceEntityID, r.TargetEntityID} {
			if _, seen := scoreByID[id]; !seen {
				entityIDs = append(entityIDs, id)
				scoreByID[id] = r.Score
			} else if r.Score > scoreByID[id] {
				scoreByID[id] = r.Score
			}
		}
	}

	fetched, err := s.store.GetEntitiesByIDs(ctx, entityIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]knowledge.Entity, len(fetched))
	for _, e := range fetched {
		byID[e.ID] = e
	}
	var entities []knowledge.Entity
	for _, id := range entityIDs {
		if e, ok := byID[id]; ok {
			e.Score = scoreByID[id]
			entities = append(entities, e)
		}
	}

	chunks, err := s.expandViaEntities(ctx, entities)
	if err != nil {
		return nil, err
	}
	return &EvidenceSet{Chunks: chunks, Entities: entities, Relations: relations}, nil
}

// hybrid: local and global independently, chunk sets unioned with the higher
// score winning on collision.
func (s *Service) hybrid(ctx context.Context, vec []float32, topK int) (*EvidenceSet, error) {
	var localEv, globalEv *EvidenceSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { localEv, err = s.local(gctx, vec, topK); return })
	g.Go(func() (err error) { globalEv, err = s.global(gctx, vec, topK); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeEvidence(localEv, globalEv), nil
}

// mix: naive, local, and global fanned out concurrently, all three evidence
// sets unioned. The default and richest mode.
func (s *Service) mix(ctx context.Context, vec []float32, topK int) (*EvidenceSet, error) {
	var naiveEv, localEv, globalEv *EvidenceSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { naiveEv, err = s.naive(gctx, vec, topK); return })
	g.Go(func() (err error) { localEv, err = s.local(gctx, vec, topK); return })
	g.Go(func() (err error) { globalEv, err = s.global(gctx, vec, topK); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeEvidence(naiveEv, localEv, globalEv), nil
}

// expandViaEntities gathers the chunks referenced by the matched entities'
// contributing-chunk sets, deduplicated by chunk id. The first (highest
// scoring) owning entity's similarity becomes the chunk's score.
func (s *Service) expandViaEntities(ctx context.Context, entities []knowledge.Entity) ([]knowledge.Chunk, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	var idOrder []string
	scoreByID := make(map[string]float32)
	for _, e := range entities {
		for _, cid := range e.ChunkIDs {
			if _, seen := scoreByID[cid]; seen {
				if e.Score > scoreByID[cid] {
					scoreByID[cid] = e.Score
				}
				continue
			}
			idOrder = append(idOrder, cid)
			scoreByID[cid] = e.Score
		}
	}

	fetched, err := s.store.GetChunksByIDs(ctx, idOrder)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]knowledge.Chunk, len(fetched))
	for _, c := range fetched {
		byID[c.ID] = c
	}

	var chunks []knowledge.Chunk
	for _, id := range idOrder {
		if c, ok := byID[id]; ok {
			c.Score = scoreByID[id]
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// mergeEvidence unions evidence sets in argument order, deduplicating each
// kind by id. The higher score wins on collision; position is kept from the
// first appearance so equal-score ordering stays deterministic.
func mergeEvidence(sets ...*EvidenceSet) *EvidenceSet {
	out := &EvidenceSet{}
	chunkIdx := make(map[string]int)
	entityIdx := make(map[string]int)
	relationIdx := make(map[string]int)

	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, c := range set.Chunks {
			if i, ok := chunkIdx[c.ID]; ok {
				if c.Score > out.Chunks[i].Score {
					out.Chunks[i].Score = c.Score
				}
				continue
			}
			chunkIdx[c.ID] = len(out.Chunks)
			out.Chunks = append(out.Chunks, c)
		}
		for _, e := range set.Entities {
			if i, ok := entityIdx[e.ID]; ok {
				if e.Score > out.Entities[i].Score {
					out.Entities[i].Score = e.Score
				}
				continue
			}
			entityIdx[e.ID] = len(out.Entities)
			out.Entities = append(out.Entities, e)
		}
		for _, r := range set.Relations {
			if i, ok := relationIdx[r.ID]; ok {
				if r.Score > out.Relations[i].Score {
					out.Relations[i].Score = r.Score
				}
				continue
			}
			relationIdx[r.ID] = len(out.Relations)
			out.Relations = append(out.Relations, r)
		}
	}
	return out
}

// The store applies the certainty floor server-side; these re-checks keep the
// invariant local so a permissive store cannot leak low-relevance padding.
func applyFloorChunks(in []knowledge.Chunk, floor float32) []knowledge.Chunk {
	out := in[:0]
	for _, c := range in {
		if c.Score >= floor {
			out = append(out, c)
		}
	}
	return out
}

func applyFloorEntities(in []knowledge.Entity, floor float32) []knowledge.Entity {
	out := in[:0]
	for _, e := range in {
		if e.Score >= floor {
			out = append(out, e)
		}
	}
	return out
}

func applyFloorRelations(in []knowledge.Relation, floor float32) []knowledge.Relation {
	out := in[:0]
	for _, r := range in {
		if r.Score >= floor {
			out = append(out, r)
		}
	}
	return out
}
