package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

const (
	ClassChunk    = "KnowledgeChunk"
	ClassEntity   = "KnowledgeEntity"
	ClassRelation = "KnowledgeRelation"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func classes() []*models.Class {
	return []*models.Class{
		{
			Class:       ClassChunk,
			Description: "A bounded unit of searchable content derived from a document",
			Vectorizer:  "none",
			Properties: []*models.Property{
				{Name: "content", DataType: []string{"text"}},
				{Name: "documentId", DataType: []string{"string"}},
				{Name: "chunkIndex", DataType: []string{"int"}},
				{Name: "tokenCount", DataType: []string{"int"}},
				{Name: "modality", DataType: []string{"string"}},
				{Name: "startTime", DataType: []string{"number"}},
				{Name: "endTime", DataType: []string{"number"}},
				{Name: "hasTimeRange", DataType: []string{"boolean"}},
				{Name: "pageIndex", DataType: []string{"int"}},
			},
		},
		{
			Class:       ClassEntity,
			Description: "A deduplicated named concept extracted from chunks",
			Vectorizer:  "none",
			Properties: []*models.Property{
				{Name: "name", DataType: []string{"text"}},
				{Name: "normalizedName", DataType: []string{"string"}},
				{Name: "entityType", DataType: []string{"string"}},
				{Name: "description", DataType: []string{"text"}},
				{Name: "chunkIds", DataType: []string{"string[]"}},
			},
		},
		{
			Class:       ClassRelation,
			Description: "A directed typed edge between two entities",
			Vectorizer:  "none",
			Properties: []*models.Property{
				{Name: "sourceEntityId", DataType: []string{"string"}},
				{Name: "targetEntityId", DataType: []string{"string"}},
				{Name: "relationType", DataType: []string{"string"}},
				{Name: "description", DataType: []string{"text"}},
				{Name: "chunkIds", DataType: []string{"string[]"}},
			},
		},
	}
}

// EnsureSchema checks that the three knowledge classes exist and creates or
// extends them as needed.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	for _, want := range classes() {
		exists, err := client.ClassExists(ctx, want.Class)
		if err != nil {
			return err
		}

		if !exists {
			if err := client.CreateClass(ctx, want); err != nil {
				return err
			}
			continue
		}

		// Class exists, check for missing properties
		have, err := client.GetClass(ctx, want.Class)
		if err != nil {
			return err
		}
		existing := make(map[string]bool)
		for _, p := range have.Properties {
			existing[p.Name] = true
		}
		for _, p := range want.Properties {
			if !existing[p.Name] {
				if err := client.AddProperty(ctx, want.Class, p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
