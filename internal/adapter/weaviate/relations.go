package weaviate

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"graphloom/internal/knowledge"
)

var relationFields = []graphql.Field{
	{Name: "sourceEntityId"},
	{Name: "targetEntityId"},
	{Name: "relationType"},
	{Name: "description"},
	{Name: "chunkIds"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
}

func relationProperties(r knowledge.Relation) map[string]interface{} {
	return map[string]interface{}{
		"sourceEntityId": r.SourceEntityID,
		"targetEntityId": r.TargetEntityID,
		"relationType":   r.Type,
		"description":    r.Description,
		"chunkIds":       r.ChunkIDs,
	}
}

func parseRelation(props map[string]interface{}) knowledge.Relation {
	return knowledge.Relation{
		ID:             additionalID(props),
		SourceEntityID: stringProp(props, "sourceEntityId"),
		TargetEntityID: stringProp(props, "targetEntityId"),
		Type:           stringProp(props, "relationType"),
		Description:    stringProp(props, "description"),
		ChunkIDs:       stringSliceProp(props, "chunkIds"),
		Score:          additionalCertainty(props),
	}
}

func (s *Store) CreateRelation(ctx context.Context, r knowledge.Relation) error {
	creator := s.client.Data().Creator().
		WithClassName(classRelation).
		WithID(r.ID).
		WithProperties(relationProperties(r))
	if len(r.Vector) > 0 {
		creator = creator.WithVector(r.Vector)
	}
	_, err := creator.Do(ctx)
	return err
}

// UpdateRelation patches the stored record, preserving the stored vector when
// the caller carries none (chunk-id unions read the record without it).
func (s *Store) UpdateRelation(ctx context.Context, r knowledge.Relation) error {
	updater := s.client.Data().Updater().
		WithClassName(classRelation).
		WithID(r.ID).
		WithProperties(relationProperties(r)).
		WithMerge()
	if len(r.Vector) > 0 {
		updater = updater.WithVector(r.Vector)
	}
	return updater.Do(ctx)
}

func (s *Store) DeleteRelation(ctx context.Context, id string) error {
	return s.client.Data().Deleter().
		WithClassName(classRelation).
		WithID(id).
		Do(ctx)
}

// GetRelationByTriple enforces (source, type, target) uniqueness at the
// persistence boundary.
func (s *Store) GetRelationByTriple(ctx context.Context, sourceID, relType, targetID string) (*knowledge.Relation, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"sourceEntityId"}).WithOperator(filters.Equal).WithValueString(sourceID),
			filters.Where().WithPath([]string{"relationType"}).WithOperator(filters.Equal).WithValueString(relType),
			filters.Where().WithPath([]string{"targetEntityId"}).WithOperator(filters.Equal).WithValueString(targetID),
		})

	res, err := s.client.GraphQL().Get().
		WithClassName(classRelation).
		WithWhere(where).
		WithLimit(1).
		WithFields(relationFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classRelation)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := parseRelation(rows[0])
	return &r, nil
}

// GetRelationsByEntity returns every relation with the entity at either end.
func (s *Store) GetRelationsByEntity(ctx context.Context, entityID string) ([]knowledge.Relation, error) {
	where := filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"sourceEntityId"}).WithOperator(filters.Equal).WithValueString(entityID),
			filters.Where().WithPath([]string{"targetEntityId"}).WithOperator(filters.Equal).WithValueString(entityID),
		})

	res, err := s.client.GraphQL().Get().
		WithClassName(classRelation).
		WithWhere(where).
		WithLimit(10000).
		WithFields(relationFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classRelation)
	if err != nil {
		return nil, err
	}
	relations := make([]knowledge.Relation, 0, len(rows))
	for _, row := range rows {
		relations = append(relations, parseRelation(row))
	}
	return relations, nil
}

func (s *Store) SearchRelations(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Relation, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithCertainty(threshold)

	res, err := s.client.GraphQL().Get().
		WithClassName(classRelation).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(relationFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classRelation)
	if err != nil {
		return nil, err
	}
	relations := make([]knowledge.Relation, 0, len(rows))
	for _, row := range rows {
		relations = append(relations, parseRelation(row))
	}
	return relations, nil
}
