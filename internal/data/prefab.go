package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"go.uber.org/zap"
)

// PrefabLibrary holds detached prototype entities, one per JSON file. It is
// the prefab source for "Archetype" keys.
type PrefabLibrary struct {
	log *zap.Logger
	*Library[*ecs.Entity]
}

func NewPrefabLibrary(log *zap.Logger) *PrefabLibrary {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrefabLibrary{log: log, Library: NewLibrary[*ecs.Entity]("prefab")}
}

// Instantiate returns a deep copy of the named prefab.
func (p *PrefabLibrary) Instantiate(name string) (*ecs.Entity, error) {
	proto, err := p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return proto.Clone(), nil
}

// LoadDir replaces the library with every *.json file in dir, keyed by file
// name without extension, which is also the default entity name. Files are
// read in name order, so a prefab may use an earlier one as its archetype.
// Read problems are logged and returned; only I/O failures abort.
func (p *PrefabLibrary) LoadDir(dir string) ([]serial.Issue, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list prefabs: %w", err)
	}
	sort.Strings(files)

	p.Clear()
	var issues []serial.Issue
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return issues, fmt.Errorf("read prefab %s: %w", f, err)
		}
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		r := ecs.WithPrefabs(serial.NewReader(p.log.With(zap.String("prefab", name))), p)
		e := ecs.NewEntity(name)
		r.Read(e, raw)
		p.Add(name, e)
		issues = append(issues, r.Issues()...)
	}
	p.version++
	p.log.Info("prefabs loaded", zap.Int("count", p.Len()), zap.Int("issues", len(issues)))
	return issues, nil
}
