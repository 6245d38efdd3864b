package graph

import "strings"

// RawEntity is one extractor mention of a named concept, before dedup.
type RawEntity struct {
	Name        string
	Type        string
	Description string
	ChunkID     string
}

// RawRelation is one extractor mention of an edge, endpoints still names.
type RawRelation struct {
	Source      string
	Target      string
	Type        string
	Description string
	ChunkID     string
}

// Merged is a canonical entity after the corpus-level dedup pass, before
// persistence assigns an id and vector.
type Merged struct {
	Name           string // first-seen original casing
	NormalizedName string
	Type           string
	Description    string
	ChunkIDs       []string
}

// DedupEntities groups raw mentions by normalized name. The first-seen casing
// becomes the display name, descriptions are merged, and contributing chunk
// ids are unioned. Output preserves first-mention order.
func DedupEntities(raw []RawEntity) []Merged {
	byNorm := make(map[string]*Merged)
	var order []string

	for _, r := range raw {
		norm := Normalize(r.Name)
		if norm == "" {
			continue
		}
		m, ok := byNorm[norm]
		if !ok {
			m = &Merged{
				Name:           strings.TrimSpace(r.Name),
				NormalizedName: norm,
				Type:           r.Type,
			}
			byNorm[norm] = m
			order = append(order, norm)
		}
		m.Description = MergeDescriptions(m.Description, r.Description)
		m.ChunkIDs = unionChunkIDs(m.ChunkIDs, r.ChunkID)
	}

	out := make([]Merged, 0, len(order))
	for _, norm := range order {
		out = append(out, *byNorm[norm])
	}
	return out
}

// MergeDescriptions appends incoming to existing unless an identical passage
// is already present.
func MergeDescriptions(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	for _, part := range strings.Split(existing, "\n") {
		if part == incoming {
			return existing
		}
	}
	return existing + "\n" + incoming
}

func unionChunkIDs(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}

// ResolvedRelation is an edge whose endpoints resolved to persisted entity
// ids via the normalized-name map.
type ResolvedRelation struct {
	SourceID    string
	TargetID    string
	Type        string
	Description string
	ChunkIDs    []string
}

// ResolveRelations maps endpoint names to entity ids, silently dropping any
// relation with an unresolvable endpoint. Duplicate (source, type, target)
// triples collapse into the first occurrence: its description wins, but
// contributing chunk ids are unioned so deletion cleanup sees all evidence.
func ResolveRelations(raw []RawRelation, idByNorm map[string]string) []ResolvedRelation {
	byTriple := make(map[[3]string]*ResolvedRelation)
	var order [][3]string

	for _, r := range raw {
		srcID, okSrc := idByNorm[Normalize(r.Source)]
		tgtID, okTgt := idByNorm[Normalize(r.Target)]
		if !okSrc || !okTgt {
			continue
		}
		relType := strings.TrimSpace(r.Type)
		if relType == "" {
			relType = "RELATED_TO"
		}
		key := [3]string{srcID, relType, tgtID}
		res, ok := byTriple[key]
		if !ok {
			res = &ResolvedRelation{
				SourceID:    srcID,
				TargetID:    tgtID,
				Type:        relType,
				Description: strings.TrimSpace(r.Description),
			}
			byTriple[key] = res
			order = append(order, key)
		}
		res.ChunkIDs = unionChunkIDs(res.ChunkIDs, r.ChunkID)
	}

	out := make([]ResolvedRelation, 0, len(order))
	for _, key := range order {
		out = append(out, *byTriple[key])
	}
	return out
}
