package weaviate

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"graphloom/internal/knowledge"
)

var entityFields = []graphql.Field{
	{Name: "name"},
	{Name: "normalizedName"},
	{Name: "entityType"},
	{Name: "description"},
	{Name: "chunkIds"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
}

func entityProperties(e knowledge.Entity) map[string]interface{} {
	return map[string]interface{}{
		"name":           e.Name,
		"normalizedName": e.NormalizedName,
		"entityType":     e.Type,
		"description":    e.Description,
		"chunkIds":       e.ChunkIDs,
	}
}

func parseEntity(props map[string]interface{}) knowledge.Entity {
	return knowledge.Entity{
		ID:             additionalID(props),
		Name:           stringProp(props, "name"),
		NormalizedName: stringProp(props, "normalizedName"),
		Type:           stringProp(props, "entityType"),
		Description:    stringProp(props, "description"),
		ChunkIDs:       stringSliceProp(props, "chunkIds"),
		Score:          additionalCertainty(props),
	}
}

func (s *Store) CreateEntity(ctx context.Context, e knowledge.Entity) error {
	creator := s.client.Data().Creator().
		WithClassName(classEntity).
		WithID(e.ID).
		WithProperties(entityProperties(e))
	if len(e.Vector) > 0 {
		creator = creator.WithVector(e.Vector)
	}
	_, err := creator.Do(ctx)
	return err
}

// UpdateEntity patches the stored record; used for description merges and
// chunk-id set growth or contraction. Merge semantics keep the stored vector
// when the caller does not carry one, so an entity updated from a vectorless
// read stays visible to nearVector search.
func (s *Store) UpdateEntity(ctx context.Context, e knowledge.Entity) error {
	updater := s.client.Data().Updater().
		WithClassName(classEntity).
		WithID(e.ID).
		WithProperties(entityProperties(e)).
		WithMerge()
	if len(e.Vector) > 0 {
		updater = updater.WithVector(e.Vector)
	}
	return updater.Do(ctx)
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	return s.client.Data().Deleter().
		WithClassName(classEntity).
		WithID(id).
		Do(ctx)
}

// GetEntityByNormalizedName returns the entity with the given uniqueness key,
// or nil when none exists. This is the cross-document merge point.
func (s *Store) GetEntityByNormalizedName(ctx context.Context, normalized string) (*knowledge.Entity, error) {
	res, err := s.client.GraphQL().Get().
		WithClassName(classEntity).
		WithWhere(filters.Where().
			WithPath([]string{"normalizedName"}).
			WithOperator(filters.Equal).
			WithValueString(normalized)).
		WithLimit(1).
		WithFields(entityFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classEntity)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e := parseEntity(rows[0])
	return &e, nil
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, ids []string) ([]knowledge.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.client.GraphQL().Get().
		WithClassName(classEntity).
		WithWhere(filters.Where().
			WithPath([]string{"id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids...)).
		WithLimit(len(ids)).
		WithFields(entityFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classEntity)
	if err != nil {
		return nil, err
	}
	entities := make([]knowledge.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, parseEntity(row))
	}
	return entities, nil
}

// GetEntitiesByChunkIDs returns every entity whose contributing-chunk set
// intersects ids. Used for deletion-triggered contraction.
func (s *Store) GetEntitiesByChunkIDs(ctx context.Context, ids []string) ([]knowledge.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.client.GraphQL().Get().
		WithClassName(classEntity).
		WithWhere(filters.Where().
			WithPath([]string{"chunkIds"}).
			WithOperator(filters.ContainsAny).
			WithValueString(ids...)).
		WithLimit(10000).
		WithFields(entityFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classEntity)
	if err != nil {
		return nil, err
	}
	entities := make([]knowledge.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, parseEntity(row))
	}
	return entities, nil
}

func (s *Store) SearchEntities(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Entity, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithCertainty(threshold)

	res, err := s.client.GraphQL().Get().
		WithClassName(classEntity).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(entityFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classEntity)
	if err != nil {
		return nil, err
	}
	entities := make([]knowledge.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, parseEntity(row))
	}
	return entities, nil
}
