package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs as plain files under a root directory. Locators are
// sanitized to a flat filename so a crafted locator cannot escape the root.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(locator string) string {
	name := filepath.Base(filepath.Clean(locator))
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return filepath.Join(s.root, name)
}

func (s *FSStore) Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error {
	f, err := os.OpenFile(s.path(locator), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func (s *FSStore) Get(ctx context.Context, locator string) ([]byte, error) {
	data, err := os.ReadFile(s.path(locator))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FSStore) Delete(ctx context.Context, locator string) error {
	err := os.Remove(s.path(locator))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
