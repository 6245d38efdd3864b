package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const videoOverviewPrompt = `Watch this video and provide:
1. A concise overview of its content.
2. If the video covers distinct topics, list the topic boundaries, one per
   line, in the exact form "MM:SS - topic".`

const videoSegmentPrompt = `Describe in detail what happens in this video between %s and %s.
Cover spoken content, on-screen text, and visual events. Topic: %s`

type segment struct {
	start, end float64
	label      string
}

// extractVideo uploads the file once, asks for an overview with topic
// boundaries, then analyzes each segment in turn. With fewer than two
// parseable timestamps it falls back to fixed time windows. A failed segment
// degrades to a timestamp-label placeholder and never aborts the rest.
func (d *Dispatcher) extractVideo(ctx context.Context, data []byte, mimeType string) ([]ContentItem, error) {
	ref, err := d.client.UploadFile(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("video upload: %w", err)
	}
	defer func() {
		if derr := d.client.DeleteFile(ctx, ref.Handle); derr != nil {
			slog.WarnContext(ctx, "failed to delete uploaded video", "error", derr)
		}
	}()

	overview, err := d.client.DescribeFile(ctx, ref.Handle, mimeType, videoOverviewPrompt)
	if err != nil {
		return nil, fmt.Errorf("video overview call: %w", err)
	}

	items := []ContentItem{{Type: ItemText, Content: overview}}

	stamps := ParseTimestamps(overview)
	var segs []segment
	if len(stamps) >= 2 {
		segs = topicSegments(stamps, ref.DurationSec, float64(d.opts.VideoWindowSeconds))
	} else {
		slog.InfoContext(ctx, "no topic timestamps in overview, using fixed windows",
			"window_seconds", d.opts.VideoWindowSeconds, "duration", ref.DurationSec)
		segs = windowSegments(ref.DurationSec, float64(d.opts.VideoWindowSeconds))
	}

	for _, sg := range segs {
		label := sg.label
		if label == "" {
			label = "segment"
		}
		prompt := fmt.Sprintf(videoSegmentPrompt, FormatTimestamp(sg.start), FormatTimestamp(sg.end), label)
		detail, derr := d.client.DescribeFile(ctx, ref.Handle, mimeType, prompt)
		if derr != nil || strings.TrimSpace(detail) == "" {
			slog.WarnContext(ctx, "video segment analysis failed, using placeholder",
				"start", sg.start, "end", sg.end, "error", derr)
			detail = fmt.Sprintf("[%s - %s] %s", FormatTimestamp(sg.start), FormatTimestamp(sg.end), label)
		}
		items = append(items, ContentItem{
			Type:         ItemVideoSegment,
			Content:      detail,
			StartSec:     sg.start,
			EndSec:       sg.end,
			HasTimeRange: true,
			Segmented:    true,
		})
	}

	return items, nil
}

func topicSegments(stamps []Timestamp, duration, window float64) []segment {
	segs := make([]segment, 0, len(stamps))
	for i, ts := range stamps {
		end := duration
		if i+1 < len(stamps) {
			end = stamps[i+1].Seconds
		} else if duration <= ts.Seconds {
			end = ts.Seconds + window
		}
		segs = append(segs, segment{start: ts.Seconds, end: end, label: ts.Topic})
	}
	return segs
}

func windowSegments(duration, window float64) []segment {
	if duration <= 0 {
		return []segment{{start: 0, end: window}}
	}
	var segs []segment
	for start := 0.0; start < duration; start += window {
		end := start + window
		if end > duration {
			end = duration
		}
		segs = append(segs, segment{start: start, end: end})
	}
	return segs
}
