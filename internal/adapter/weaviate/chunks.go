package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"graphloom/internal/knowledge"
)

var chunkFields = []graphql.Field{
	{Name: "content"},
	{Name: "documentId"},
	{Name: "chunkIndex"},
	{Name: "tokenCount"},
	{Name: "modality"},
	{Name: "startTime"},
	{Name: "endTime"},
	{Name: "hasTimeRange"},
	{Name: "pageIndex"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
}

func chunkProperties(c knowledge.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"content":      c.Content,
		"documentId":   c.DocumentID,
		"chunkIndex":   c.Index,
		"tokenCount":   c.TokenCount,
		"modality":     c.Modality,
		"startTime":    c.StartSec,
		"endTime":      c.EndSec,
		"hasTimeRange": c.HasTimeRange,
		"pageIndex":    c.PageIndex,
	}
}

func parseChunk(props map[string]interface{}) knowledge.Chunk {
	return knowledge.Chunk{
		ID:           additionalID(props),
		Content:      stringProp(props, "content"),
		DocumentID:   stringProp(props, "documentId"),
		Index:        intProp(props, "chunkIndex"),
		TokenCount:   intProp(props, "tokenCount"),
		Modality:     stringProp(props, "modality"),
		StartSec:     floatProp(props, "startTime"),
		EndSec:       floatProp(props, "endTime"),
		HasTimeRange: boolProp(props, "hasTimeRange"),
		PageIndex:    intProp(props, "pageIndex"),
		Score:        additionalCertainty(props),
	}
}

// BatchStoreChunks writes chunks in batches of batchSize. Object ids are the
// application-assigned chunk ids, so a re-run after failure upserts instead
// of duplicating.
func (s *Store) BatchStoreChunks(ctx context.Context, chunks []knowledge.Chunk, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		objs := make([]*models.Object, 0, end-start)
		for _, c := range chunks[start:end] {
			obj := &models.Object{
				Class:      classChunk,
				ID:         strfmt.UUID(c.ID),
				Properties: chunkProperties(c),
			}
			if len(c.Vector) > 0 {
				obj.Vector = models.C11yVector(c.Vector)
			}
			objs = append(objs, obj)
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			return err
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch write: %s", r.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(classChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

func (s *Store) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]knowledge.Chunk, error) {
	if limit <= 0 {
		limit = 1000
	}
	res, err := s.client.GraphQL().Get().
		WithClassName(classChunk).
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		WithLimit(limit).
		WithFields(chunkFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classChunk)
	if err != nil {
		return nil, err
	}
	chunks := make([]knowledge.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, parseChunk(row))
	}
	return chunks, nil
}

func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) ([]knowledge.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.client.GraphQL().Get().
		WithClassName(classChunk).
		WithWhere(filters.Where().
			WithPath([]string{"id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids...)).
		WithLimit(len(ids)).
		WithFields(chunkFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classChunk)
	if err != nil {
		return nil, err
	}
	chunks := make([]knowledge.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, parseChunk(row))
	}
	return chunks, nil
}

// SearchChunks runs a nearVector query with a certainty floor. Results come
// back in the index's descending-certainty order.
func (s *Store) SearchChunks(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]knowledge.Chunk, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithCertainty(threshold)

	res, err := s.client.GraphQL().Get().
		WithClassName(classChunk).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(chunkFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := graphqlRows(res, classChunk)
	if err != nil {
		return nil, err
	}
	chunks := make([]knowledge.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, parseChunk(row))
	}
	return chunks, nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(classChunk).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}
	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[classChunk].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}
