package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists for the given locator.
var ErrNotFound = errors.New("blob: not found")

// Store holds original uploaded file bytes, keyed by an opaque locator string.
// The pipeline only ever reads whole files back, so the read side is simple.
type Store interface {
	Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}
