package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts the content-understanding service per prompt.
type fakeClient struct {
	describeFn     func(prompt string) (string, error)
	describeFileFn func(handle, prompt string) (string, error)
	uploadRef      FileRef
	uploadErr      error
	deleted        []string
}

func (f *fakeClient) Describe(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	if f.describeFn == nil {
		return "", errors.New("unexpected Describe call")
	}
	return f.describeFn(prompt)
}

func (f *fakeClient) UploadFile(ctx context.Context, data []byte, mimeType string) (FileRef, error) {
	if f.uploadErr != nil {
		return FileRef{}, f.uploadErr
	}
	if f.uploadRef.Handle == "" {
		f.uploadRef.Handle = "files/abc"
	}
	return f.uploadRef, nil
}

func (f *fakeClient) DescribeFile(ctx context.Context, handle, mimeType, prompt string) (string, error) {
	if f.describeFileFn == nil {
		return "", errors.New("unexpected DescribeFile call")
	}
	return f.describeFileFn(handle, prompt)
}

func (f *fakeClient) DeleteFile(ctx context.Context, handle string) error {
	f.deleted = append(f.deleted, handle)
	return nil
}

func TestResolveModality(t *testing.T) {
	cases := map[string]Modality{
		"notes.md":  ModalityText,
		"data.CSV":  ModalityText,
		"paper.pdf": ModalityDocument,
		"deck.pptx": ModalityDocument,
		"logo.png":  ModalityImage,
		"call.mp3":  ModalityAudio,
		"demo.mp4":  ModalityVideo,
	}
	for name, want := range cases {
		got, err := ResolveModality(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ResolveModality("archive.zip")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = ResolveModality("noextension")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtractUnknownModality(t *testing.T) {
	d := NewDispatcher(&fakeClient{}, Options{})
	_, err := d.Extract(context.Background(), Modality("spreadsheet"), nil, "x", "")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtractText(t *testing.T) {
	d := NewDispatcher(&fakeClient{}, Options{})

	items, err := d.Extract(context.Background(), ModalityText, []byte("\xEF\xBB\xBFhello world"), "a.txt", "text/plain")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ItemText, items[0].Type)
	assert.Equal(t, "hello world", items[0].Content)
	assert.False(t, items[0].Segmented)
}

func TestExtractDocumentParsesItems(t *testing.T) {
	client := &fakeClient{describeFn: func(prompt string) (string, error) {
		return `Here you go:
[
  {"type": "text", "content": "Intro paragraph.", "page": 0},
  {"type": "table", "content": "| a | b |", "page": 1},
  {"type": "image", "content": "A bar chart of revenue.", "page": 1},
  {"type": "text", "content": "   ", "page": 2}
]`, nil
	}}
	d := NewDispatcher(client, Options{})

	items, err := d.Extract(context.Background(), ModalityDocument, []byte("%PDF"), "r.pdf", "application/pdf")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ItemText, items[0].Type)
	assert.False(t, items[0].Segmented)
	assert.Equal(t, 0, items[0].PageIndex)

	assert.Equal(t, ItemTable, items[1].Type)
	assert.True(t, items[1].Segmented)
	assert.Equal(t, 1, items[1].PageIndex)

	assert.Equal(t, ItemImage, items[2].Type)
	assert.True(t, items[2].Segmented)
}

func TestExtractDocumentDegradesToRawText(t *testing.T) {
	client := &fakeClient{describeFn: func(prompt string) (string, error) {
		return "The document talks about quarterly results but I cannot produce JSON.", nil
	}}
	d := NewDispatcher(client, Options{})

	items, err := d.Extract(context.Background(), ModalityDocument, []byte("%PDF"), "r.pdf", "application/pdf")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ItemText, items[0].Type)
	assert.Contains(t, items[0].Content, "quarterly results")
}

func TestExtractDocumentTransportError(t *testing.T) {
	client := &fakeClient{describeFn: func(prompt string) (string, error) {
		return "", errors.New("503 backend unavailable")
	}}
	d := NewDispatcher(client, Options{})

	_, err := d.Extract(context.Background(), ModalityDocument, []byte("%PDF"), "r.pdf", "application/pdf")
	assert.Error(t, err)
}

func TestExtractImagePlaceholderOnFailure(t *testing.T) {
	client := &fakeClient{describeFn: func(prompt string) (string, error) {
		return "", errors.New("vision quota exceeded")
	}}
	d := NewDispatcher(client, Options{})

	items, err := d.Extract(context.Background(), ModalityImage, []byte{0x89}, "x.png", "image/png")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ItemImage, items[0].Type)
	assert.Equal(t, imagePlaceholder, items[0].Content)
	assert.True(t, items[0].Segmented)
}

func TestExtractVideoTopicSegments(t *testing.T) {
	overview := `Overview of the demo.
00:00 - Introduction
02:15 - Pricing`
	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/v1", DurationSec: 300},
		describeFileFn: func(handle, prompt string) (string, error) {
			if strings.Contains(prompt, "topic boundaries") {
				return overview, nil
			}
			return "Segment detail for: " + prompt, nil
		},
	}
	d := NewDispatcher(client, Options{VideoWindowSeconds: 30})

	items, err := d.Extract(context.Background(), ModalityVideo, []byte("vid"), "demo.mp4", "video/mp4")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ItemText, items[0].Type)
	assert.Contains(t, items[0].Content, "Overview of the demo")

	assert.Equal(t, ItemVideoSegment, items[1].Type)
	assert.Equal(t, 0.0, items[1].StartSec)
	assert.Equal(t, 135.0, items[1].EndSec)
	assert.True(t, items[1].HasTimeRange)
	assert.True(t, items[1].Segmented)

	assert.Equal(t, 135.0, items[2].StartSec)
	assert.Equal(t, 300.0, items[2].EndSec)

	// Uploaded file is always cleaned up.
	assert.Equal(t, []string{"files/v1"}, client.deleted)
}

func TestExtractVideoWindowFallback(t *testing.T) {
	// A 95 second video with no topic boundaries splits into 30s windows
	// with a short final window.
	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/v2", DurationSec: 95},
		describeFileFn: func(handle, prompt string) (string, error) {
			if strings.Contains(prompt, "topic boundaries") {
				return "A screen recording with no clear structure.", nil
			}
			return "window detail", nil
		},
	}
	d := NewDispatcher(client, Options{VideoWindowSeconds: 30})

	items, err := d.Extract(context.Background(), ModalityVideo, []byte("vid"), "rec.mov", "video/quicktime")
	require.NoError(t, err)
	require.Len(t, items, 5) // overview + 4 windows

	wantRanges := [][2]float64{{0, 30}, {30, 60}, {60, 90}, {90, 95}}
	for i, want := range wantRanges {
		seg := items[i+1]
		assert.Equal(t, ItemVideoSegment, seg.Type)
		assert.Equal(t, want[0], seg.StartSec)
		assert.Equal(t, want[1], seg.EndSec)
	}
}

func TestExtractVideoSegmentFailurePlaceholder(t *testing.T) {
	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/v3", DurationSec: 60},
		describeFileFn: func(handle, prompt string) (string, error) {
			if strings.Contains(prompt, "topic boundaries") {
				return "00:00 - Start\n00:30 - End part", nil
			}
			return "", errors.New("segment call failed")
		},
	}
	d := NewDispatcher(client, Options{VideoWindowSeconds: 30})

	items, err := d.Extract(context.Background(), ModalityVideo, []byte("vid"), "v.mp4", "video/mp4")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "[00:00 - 00:30] Start", items[1].Content)
	assert.Equal(t, "[00:30 - 01:00] End part", items[2].Content)
}

func TestExtractVideoOverviewFailureIsFatal(t *testing.T) {
	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/v4", DurationSec: 60},
		describeFileFn: func(handle, prompt string) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	d := NewDispatcher(client, Options{})

	_, err := d.Extract(context.Background(), ModalityVideo, []byte("vid"), "v.mp4", "video/mp4")
	assert.Error(t, err)
	assert.Equal(t, []string{"files/v4"}, client.deleted)
}

func TestExtractAudioWithTimestamps(t *testing.T) {
	resp := `## Summary
A two part interview.
00:00 - Opening
01:00 - Main interview

## Transcription
Full transcription text here.`
	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/a1", DurationSec: 180},
		describeFileFn: func(handle, prompt string) (string, error) {
			if strings.Contains(prompt, "## Summary") {
				return resp, nil
			}
			return "Segment transcript: " + prompt, nil
		},
	}
	d := NewDispatcher(client, Options{VideoWindowSeconds: 30})

	items, err := d.Extract(context.Background(), ModalityAudio, []byte("aud"), "x.mp3", "audio/mpeg")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, ItemAudio, items[0].Type)
	assert.Equal(t, 0.0, items[0].StartSec)
	assert.Equal(t, 60.0, items[0].EndSec)
	assert.True(t, items[0].HasTimeRange)

	assert.Equal(t, 60.0, items[1].StartSec)
	assert.Equal(t, 180.0, items[1].EndSec)
}

func TestExtractAudioFallbackChunksTranscription(t *testing.T) {
	var paras []string
	for i := 0; i < 3; i++ {
		paras = append(paras, strings.TrimSpace(strings.Repeat(fmt.Sprintf("part%d word ", i), 50)))
	}
	resp := "## Summary\nShort note.\n\n## Transcription\n" + strings.Join(paras, "\n\n")

	client := &fakeClient{
		uploadRef: FileRef{Handle: "files/a2", DurationSec: 120},
		describeFileFn: func(handle, prompt string) (string, error) {
			return resp, nil
		},
	}
	d := NewDispatcher(client, Options{AudioPieceTokens: 100})

	items, err := d.Extract(context.Background(), ModalityAudio, []byte("aud"), "x.wav", "audio/wav")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(items), 2)
	for _, it := range items {
		assert.Equal(t, ItemAudio, it.Type)
		assert.True(t, it.Segmented)
		assert.False(t, it.HasTimeRange)
		assert.NotContains(t, it.Content, "## Summary")
	}
}

func TestExtractAudioUploadFailure(t *testing.T) {
	client := &fakeClient{uploadErr: errors.New("upload rejected")}
	d := NewDispatcher(client, Options{})

	_, err := d.Extract(context.Background(), ModalityAudio, []byte("aud"), "x.mp3", "audio/mpeg")
	assert.Error(t, err)
}

func TestExtractTranscription(t *testing.T) {
	resp := `## Summary
Stuff happened.

## Transcription
line one
line two

## Notes
ignored`
	assert.Equal(t, "line one\nline two", ExtractTranscription(resp))

	assert.Equal(t, "inline body", ExtractTranscription("Transcription: inline body"))

	plain := "no headings at all"
	assert.Equal(t, plain, ExtractTranscription(plain))
}
