package knowledge

// Chunk is a bounded, independently retrievable unit of content derived from
// one document. Text and document chunks are ordered by Index; audio and
// video chunks carry a [StartSec, EndSec) time range instead.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Index        int       `json:"index"`
	Content      string    `json:"content"`
	TokenCount   int       `json:"token_count"`
	Modality     string    `json:"modality"` // text|table|image|audio|video_segment
	StartSec     float64   `json:"start_sec,omitempty"`
	EndSec       float64   `json:"end_sec,omitempty"`
	HasTimeRange bool      `json:"has_time_range,omitempty"`
	PageIndex    int       `json:"page_index,omitempty"`
	Vector       []float32 `json:"-"`
	Score        float32   `json:"score,omitempty"`
}

// TextBearing reports whether the chunk's content is raw text suitable for
// entity extraction. Image and table chunks carry derived descriptions that
// are indexed as plain chunks only.
func (c Chunk) TextBearing() bool {
	switch c.Modality {
	case "text", "audio", "video_segment":
		return true
	}
	return false
}

// Entity is a deduplicated named concept extracted from one or more chunks.
// NormalizedName (lowercased, whitespace-collapsed) is the uniqueness key.
type Entity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	ChunkIDs       []string  `json:"chunk_ids"`
	Vector         []float32 `json:"-"`
	Score          float32   `json:"score,omitempty"`
}

// Relation is a directed, typed edge between two entities. The
// (source, type, target) triple is unique.
type Relation struct {
	ID             string    `json:"id"`
	SourceEntityID string    `json:"source_entity_id"`
	TargetEntityID string    `json:"target_entity_id"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	ChunkIDs       []string  `json:"chunk_ids"`
	Vector         []float32 `json:"-"`
	Score          float32   `json:"score,omitempty"`
}

// EntityTypes is the closed set of entity categories the extractor may emit.
var EntityTypes = map[string]bool{
	"person":       true,
	"organization": true,
	"location":     true,
	"event":        true,
	"concept":      true,
	"technology":   true,
	"product":      true,
	"date":         true,
}

// CanonicalEntityType folds unknown extractor output into "concept".
func CanonicalEntityType(t string) string {
	if EntityTypes[t] {
		return t
	}
	return "concept"
}
