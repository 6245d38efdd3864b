package weaviate

import (
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"graphloom/internal/vector"
)

// Store persists chunks, entities, and relations in Weaviate and exposes the
// vector-similarity primitive the retrieval engine composes its modes from.
// All searches return results in the index's descending-certainty order;
// callers rely on that order staying stable for equal scores.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

const (
	classChunk    = vector.ClassChunk
	classEntity   = vector.ClassEntity
	classRelation = vector.ClassRelation
)

func graphqlRows(res *models.GraphQLResponse, class string) ([]map[string]interface{}, error) {
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := data[class].([]interface{})
	if !ok {
		return nil, nil
	}
	rows := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			rows = append(rows, props)
		}
	}
	return rows, nil
}

func additionalID(props map[string]interface{}) string {
	add, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := add["id"].(string)
	return id
}

func additionalCertainty(props map[string]interface{}) float32 {
	add, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := add["certainty"].(type) {
	case float64:
		return float32(v)
	case string:
		var f float64
		fmt.Sscanf(v, "%f", &f)
		return float32(f)
	}
	return 0
}

func stringProp(props map[string]interface{}, name string) string {
	s, _ := props[name].(string)
	return s
}

func intProp(props map[string]interface{}, name string) int {
	if f, ok := props[name].(float64); ok {
		return int(f)
	}
	return 0
}

func floatProp(props map[string]interface{}, name string) float64 {
	f, _ := props[name].(float64)
	return f
}

func boolProp(props map[string]interface{}, name string) bool {
	b, _ := props[name].(bool)
	return b
}

func stringSliceProp(props map[string]interface{}, name string) []string {
	raw, ok := props[name].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
