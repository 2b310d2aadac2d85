// Package persist stores scene documents: a directory of JSON files for
// authoring, and Postgres snapshots for saved runs.
package persist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	ErrSceneNotFound    = eris.New("scene not found")
	ErrInvalidSceneName = eris.New("invalid scene name")
)

// SceneStore loads and saves scene documents by name. Documents are the
// scene JSON exactly as written by the scene system.
type SceneStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, doc []byte) error
	List(ctx context.Context) ([]string, error)
}

// DirStore keeps each scene in <dir>/<name>.json.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore { return &DirStore{dir: dir} }

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", eris.Wrapf(ErrInvalidSceneName, "%q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func (s *DirStore) Load(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrSceneNotFound, "%q in %s", name, s.dir)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read scene %q", name)
	}
	return data, nil
}

// Save writes through a temporary file so a crash never leaves a truncated
// scene behind.
func (s *DirStore) Save(_ context.Context, name string, doc []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "create scene dir %s", s.dir)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "save scene %q", name)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "save scene %q", name)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "save scene %q", name)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return eris.Wrapf(err, "save scene %q", name)
	}
	return nil
}

func (s *DirStore) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "list scenes")
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(names)
	return names, nil
}
