package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const documentPrompt = `Extract the full content of this document. Respond with a JSON array where
each element is {"type": "text"|"table"|"image", "content": "...", "page": N}.
Use "table" for tabular data rendered as markdown, "image" for a textual
description of an embedded figure, and "text" for everything else. Preserve
reading order. Respond with the JSON array only.`

type docItem struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Page    int    `json:"page"`
}

// extractDocument delegates to the document-understanding call and parses the
// JSON-array response. A response that cannot be parsed degrades to a single
// text item carrying the raw response; a transport failure is returned.
func (d *Dispatcher) extractDocument(ctx context.Context, data []byte, mimeType string) ([]ContentItem, error) {
	resp, err := d.client.Describe(ctx, data, mimeType, documentPrompt)
	if err != nil {
		return nil, fmt.Errorf("document understanding call: %w", err)
	}

	items, ok := parseDocumentResponse(resp)
	if !ok {
		slog.WarnContext(ctx, "document response not parseable as JSON array, degrading to raw text", "response_len", len(resp))
		return []ContentItem{{Type: ItemText, Content: resp}}, nil
	}
	return items, nil
}

func parseDocumentResponse(resp string) ([]ContentItem, bool) {
	raw, ok := ScanJSONArray(resp)
	if !ok {
		return nil, false
	}

	var parsed []docItem
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false
	}

	var items []ContentItem
	for _, it := range parsed {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			continue
		}
		item := ContentItem{Content: content, PageIndex: it.Page}
		switch it.Type {
		case "table":
			item.Type = ItemTable
			item.Segmented = true
		case "image":
			item.Type = ItemImage
			item.Segmented = true
		default:
			item.Type = ItemText
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}
