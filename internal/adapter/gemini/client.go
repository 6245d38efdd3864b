package gemini

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"graphloom/internal/extract"
)

// Client implements the content-understanding calls against Gemini: inline
// multimodal description, large-file upload for video/audio, and JSON-mode
// generation for knowledge extraction.
type Client struct {
	genai *genai.Client
	model string
}

func NewClient(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{genai: c, model: model}, nil
}

func (c *Client) Close() error {
	return c.genai.Close()
}

func (c *Client) Describe(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	model := c.genai.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(prompt),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// UploadFile parks media on the service and waits for it to become active.
// Video uploads also report the clip duration, which drives segmentation.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType string) (extract.FileRef, error) {
	f, err := c.genai.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{MIMEType: mimeType})
	if err != nil {
		return extract.FileRef{}, err
	}

	for f.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return extract.FileRef{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		f, err = c.genai.GetFile(ctx, f.Name)
		if err != nil {
			return extract.FileRef{}, err
		}
	}
	if f.State != genai.FileStateActive {
		return extract.FileRef{}, fmt.Errorf("uploaded file %s in state %v", f.Name, f.State)
	}

	ref := extract.FileRef{Handle: f.Name}
	if f.Metadata != nil && f.Metadata.Video != nil {
		ref.DurationSec = f.Metadata.Video.Duration.Seconds()
	}
	slog.DebugContext(ctx, "file uploaded", "handle", ref.Handle, "duration_sec", ref.DurationSec)
	return ref, nil
}

func (c *Client) DescribeFile(ctx context.Context, handle, mimeType, prompt string) (string, error) {
	f, err := c.genai.GetFile(ctx, handle)
	if err != nil {
		return "", err
	}

	model := c.genai.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx,
		genai.FileData{MIMEType: mimeType, URI: f.URI},
		genai.Text(prompt),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func (c *Client) DeleteFile(ctx context.Context, handle string) error {
	return c.genai.DeleteFile(ctx, handle)
}

// GenerateJSON runs a text-only prompt with a JSON response type and zero
// temperature. Used by the knowledge-graph extractor.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := c.genai.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"
	var temp float32
	model.Temperature = &temp

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty model response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model response carried no text parts")
	}
	return sb.String(), nil
}
