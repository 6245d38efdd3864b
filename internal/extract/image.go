package extract

import (
	"context"
	"log/slog"
	"strings"
)

const imagePrompt = `Describe this image in detail: the subject, any visible text, layout,
and anything a person searching for this image might ask about.`

// imagePlaceholder stands in when the vision call fails outright. A standalone
// image must still yield one chunk so status tracking stays unambiguous.
const imagePlaceholder = "[image description unavailable]"

func (d *Dispatcher) extractImage(ctx context.Context, data []byte, mimeType string) ([]ContentItem, error) {
	desc, err := d.client.Describe(ctx, data, mimeType, imagePrompt)
	if err != nil || strings.TrimSpace(desc) == "" {
		slog.WarnContext(ctx, "image description failed, substituting placeholder", "error", err)
		desc = imagePlaceholder
	}
	return []ContentItem{{Type: ItemImage, Content: desc, Segmented: true}}, nil
}
