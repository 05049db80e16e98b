package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

var _ KV = (*FileKV)(nil)

// FileKV keeps the whole namespace in a single JSON document.
// Writes go to a temporary file that is renamed over the original.
type FileKV struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileKV returns a store at dir/<namespace>.json. The directory is created lazily.
func NewFileKV(fs afero.Fs, dir, namespace string) *FileKV {
	return &FileKV{
		fs:   fs,
		path: filepath.Join(dir, namespace+".json"),
	}
}

func (s *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (s *FileKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		// an unreadable document is replaced rather than blocking writes forever
		doc = make(map[string]string)
	}
	doc[key] = value
	return s.write(doc)
}

func (s *FileKV) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return s.remove()
	}
	for _, k := range keys {
		delete(doc, k)
	}
	return s.write(doc)
}

func (s *FileKV) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove()
}

func (s *FileKV) read() (map[string]string, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}

	doc := make(map[string]string)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileKV) write(doc map[string]string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileKV) remove() error {
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", s.path, err)
	}
	return nil
}
