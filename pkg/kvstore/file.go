package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// fileStore keeps every key in one JSON object on disk. The document is
// re-read on each access so separate processes sharing the path observe each
// other's writes; writes replace the file atomically.
type fileStore struct {
	mu   sync.Mutex
	path string
}

// NewFile opens (creating parent directories) a file-backed store at path.
func NewFile(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "file.open", "create storage directory", err)
	}
	return &fileStore{path: path}, nil
}

func (s *fileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (s *fileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[key] = value
	return s.save(doc)
}

func (s *fileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.save(doc)
}

func (s *fileStore) Close(context.Context) error {
	return nil
}

func (s *fileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "file.load", "read storage file", err)
	}
	doc := map[string]string{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "file.load", "decode storage file", err)
	}
	return doc, nil
}

func (s *fileStore) save(doc map[string]string) error {
	raw, err := sonic.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "file.save", "encode storage file", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.KindStorage, "file.save", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "file.save", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "file.save", "close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.KindStorage, "file.save", "replace storage file", err)
	}
	return nil
}
