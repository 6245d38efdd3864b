package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Modality is the file-level category a document resolves to. It is derived
// from the filename extension, never from the declared MIME type.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityDocument Modality = "document"
	ModalityImage    Modality = "image"
	ModalityAudio    Modality = "audio"
	ModalityVideo    Modality = "video"
)

// ItemType tags a ContentItem with the search index it participates in.
type ItemType string

const (
	ItemText         ItemType = "text"
	ItemTable        ItemType = "table"
	ItemImage        ItemType = "image"
	ItemAudio        ItemType = "audio"
	ItemVideoSegment ItemType = "video_segment"
)

var ErrUnsupported = errors.New("unsupported file type")

// ContentItem is the modality-neutral intermediate representation every
// extractor produces. Items with HasTimeRange carry [StartSec, EndSec) in
// seconds; Segmented items are already bounded and skip the text segmenter.
type ContentItem struct {
	Type         ItemType
	Content      string
	PageIndex    int
	StartSec     float64
	EndSec       float64
	HasTimeRange bool
	Segmented    bool
	Metadata     map[string]string
}

// FileRef is a handle to a large file parked on the content-understanding
// service, plus whatever the service learned about it during upload.
type FileRef struct {
	Handle      string
	DurationSec float64
}

// ContentClient is the external content-understanding service. Responses may
// wrap JSON in prose or code fences; callers parse with the jsonscan helpers.
type ContentClient interface {
	Describe(ctx context.Context, data []byte, mimeType, prompt string) (string, error)
	UploadFile(ctx context.Context, data []byte, mimeType string) (FileRef, error)
	DescribeFile(ctx context.Context, handle, mimeType, prompt string) (string, error)
	DeleteFile(ctx context.Context, handle string) error
}

// Options tune the modality-specific strategies.
type Options struct {
	// VideoWindowSeconds is the fixed-window fallback width when the
	// overview yields fewer than two topic timestamps.
	VideoWindowSeconds int
	// AudioPieceTokens bounds the transcription pieces in the no-timestamp
	// audio fallback.
	AudioPieceTokens int
}

func (o Options) withDefaults() Options {
	if o.VideoWindowSeconds <= 0 {
		o.VideoWindowSeconds = 30
	}
	if o.AudioPieceTokens <= 0 {
		o.AudioPieceTokens = 800
	}
	return o
}

// Dispatcher routes a file to the modality-appropriate extraction strategy.
type Dispatcher struct {
	client ContentClient
	opts   Options
}

func NewDispatcher(client ContentClient, opts Options) *Dispatcher {
	return &Dispatcher{client: client, opts: opts.withDefaults()}
}

// Extract converts raw file bytes into content items. Failures local to one
// item or segment degrade to placeholders; only a failure to obtain any
// representation at all is returned as an error.
func (d *Dispatcher) Extract(ctx context.Context, modality Modality, data []byte, filename, mimeType string) ([]ContentItem, error) {
	switch modality {
	case ModalityText:
		return d.extractText(data)
	case ModalityDocument:
		return d.extractDocument(ctx, data, mimeType)
	case ModalityImage:
		return d.extractImage(ctx, data, mimeType)
	case ModalityVideo:
		return d.extractVideo(ctx, data, mimeType)
	case ModalityAudio:
		return d.extractAudio(ctx, data, mimeType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, modality)
	}
}

var extModalities = map[string]Modality{
	".txt":      ModalityText,
	".md":       ModalityText,
	".markdown": ModalityText,
	".rst":      ModalityText,
	".csv":      ModalityText,
	".pdf":      ModalityDocument,
	".doc":      ModalityDocument,
	".docx":     ModalityDocument,
	".ppt":      ModalityDocument,
	".pptx":     ModalityDocument,
	".xls":      ModalityDocument,
	".xlsx":     ModalityDocument,
	".png":      ModalityImage,
	".jpg":      ModalityImage,
	".jpeg":     ModalityImage,
	".gif":      ModalityImage,
	".webp":     ModalityImage,
	".bmp":      ModalityImage,
	".mp3":      ModalityAudio,
	".wav":      ModalityAudio,
	".m4a":      ModalityAudio,
	".flac":     ModalityAudio,
	".ogg":      ModalityAudio,
	".aac":      ModalityAudio,
	".mp4":      ModalityVideo,
	".mov":      ModalityVideo,
	".avi":      ModalityVideo,
	".mkv":      ModalityVideo,
	".webm":     ModalityVideo,
}

// ResolveModality maps a filename to its ingestion modality by extension.
func ResolveModality(filename string) (Modality, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := extModalities[ext]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
}
