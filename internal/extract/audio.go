package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"graphloom/internal/text"
)

const audioPrompt = `Listen to this audio and respond with two sections:

## Summary
A concise summary of the recording.

## Transcription
The full transcription of everything spoken.

If the recording covers distinct topics, list their boundaries under the
summary, one per line, in the exact form "MM:SS - topic".`

const audioSegmentPrompt = `Transcribe and summarize this audio between %s and %s. Topic: %s`

// extractAudio requests a full transcription+summary, pulls the
// "Transcription" section via heading match (whole response as fallback), and
// either segments by topic timestamps like video or splits the transcription
// into bounded pieces by paragraph.
func (d *Dispatcher) extractAudio(ctx context.Context, data []byte, mimeType string) ([]ContentItem, error) {
	ref, err := d.client.UploadFile(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("audio upload: %w", err)
	}
	defer func() {
		if derr := d.client.DeleteFile(ctx, ref.Handle); derr != nil {
			slog.WarnContext(ctx, "failed to delete uploaded audio", "error", derr)
		}
	}()

	resp, err := d.client.DescribeFile(ctx, ref.Handle, mimeType, audioPrompt)
	if err != nil {
		return nil, fmt.Errorf("audio transcription call: %w", err)
	}

	transcription := ExtractTranscription(resp)

	stamps := ParseTimestamps(resp)
	if len(stamps) >= 2 {
		items := make([]ContentItem, 0, len(stamps))
		for _, sg := range topicSegments(stamps, ref.DurationSec, float64(d.opts.VideoWindowSeconds)) {
			label := sg.label
			if label == "" {
				label = "segment"
			}
			prompt := fmt.Sprintf(audioSegmentPrompt, FormatTimestamp(sg.start), FormatTimestamp(sg.end), label)
			detail, derr := d.client.DescribeFile(ctx, ref.Handle, mimeType, prompt)
			if derr != nil || strings.TrimSpace(detail) == "" {
				slog.WarnContext(ctx, "audio segment call failed, using placeholder",
					"start", sg.start, "end", sg.end, "error", derr)
				detail = fmt.Sprintf("[%s - %s] %s", FormatTimestamp(sg.start), FormatTimestamp(sg.end), label)
			}
			items = append(items, ContentItem{
				Type:         ItemAudio,
				Content:      detail,
				StartSec:     sg.start,
				EndSec:       sg.end,
				HasTimeRange: true,
				Segmented:    true,
			})
		}
		return items, nil
	}

	pieces := text.Chunk(transcription, d.opts.AudioPieceTokens, 0)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("audio transcription yielded no content")
	}
	items := make([]ContentItem, 0, len(pieces))
	for _, p := range pieces {
		items = append(items, ContentItem{Type: ItemAudio, Content: p.Content, Segmented: true})
	}
	return items, nil
}

var transcriptionHeadingRe = regexp.MustCompile(`(?i)^(?:#{1,6}\s*)?(?:\*\*)?\s*transcription\s*(?:\*\*)?\s*:?\s*$`)
var headingRe = regexp.MustCompile(`^(?:#{1,6}\s+\S|\*\*[^*]+\*\*:?\s*$)`)

// ExtractTranscription returns the body of the "Transcription" section, or
// the entire response when no such heading exists.
func ExtractTranscription(resp string) string {
	lines := strings.Split(resp, "\n")
	start := -1
	for i, line := range lines {
		if transcriptionHeadingRe.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		// Inline form: "Transcription: the text..."
		if idx := strings.Index(strings.ToLower(resp), "transcription:"); idx >= 0 {
			return strings.TrimSpace(resp[idx+len("transcription:"):])
		}
		return resp
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if headingRe.MatchString(strings.TrimSpace(lines[i])) {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}
