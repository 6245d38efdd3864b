package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// extractText is the pass-through path: the decoded file is the single item.
func (d *Dispatcher) extractText(data []byte) ([]ContentItem, error) {
	content := string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}
	return []ContentItem{{Type: ItemText, Content: content}}, nil
}
