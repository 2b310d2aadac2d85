package data

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/quarrygate/engine/internal/core/ecs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Texture describes an image for the renderer. Decoding is the renderer's job.
type Texture struct {
	Path   string `yaml:"path"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Filter string `yaml:"filter"` // "nearest" or "linear"
}

// Sound describes an audio clip for the mixer.
type Sound struct {
	Path   string  `yaml:"path"`
	Volume float32 `yaml:"volume"`
	Loop   bool    `yaml:"loop"`
}

// Keyframe is one pose of a TransformAnimation.
type Keyframe struct {
	Time        float32    `yaml:"time"`
	Translation [2]float32 `yaml:"translation"`
	Rotation    float32    `yaml:"rotation"`
	Scale       [2]float32 `yaml:"scale"`
}

// TransformAnimation is a keyframed pose track, sorted by time.
type TransformAnimation struct {
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Duration is the time of the last keyframe.
func (a *TransformAnimation) Duration() float32 {
	if len(a.Keyframes) == 0 {
		return 0
	}
	return a.Keyframes[len(a.Keyframes)-1].Time
}

// Sample linearly interpolates the pose at time t, holding the first and
// last keyframes outside the track.
func (a *TransformAnimation) Sample(t float32) (translation mgl32.Vec2, rotation float32, scale mgl32.Vec2) {
	switch n := len(a.Keyframes); {
	case n == 0:
		return mgl32.Vec2{}, 0, mgl32.Vec2{1, 1}
	case t <= a.Keyframes[0].Time:
		k := a.Keyframes[0]
		return k.Translation, k.Rotation, k.Scale
	case t >= a.Keyframes[n-1].Time:
		k := a.Keyframes[n-1]
		return k.Translation, k.Rotation, k.Scale
	}
	i := 1
	for a.Keyframes[i].Time < t {
		i++
	}
	k0, k1 := a.Keyframes[i-1], a.Keyframes[i]
	f := (t - k0.Time) / (k1.Time - k0.Time)
	p0, p1 := mgl32.Vec2(k0.Translation), mgl32.Vec2(k1.Translation)
	s0, s1 := mgl32.Vec2(k0.Scale), mgl32.Vec2(k1.Scale)
	return p0.Add(p1.Sub(p0).Mul(f)),
		k0.Rotation + (k1.Rotation-k0.Rotation)*f,
		s0.Add(s1.Sub(s0).Mul(f))
}

// Manifest is the assets.yaml document.
type Manifest struct {
	Textures   map[string]*Texture            `yaml:"textures"`
	Sounds     map[string]*Sound              `yaml:"sounds"`
	Animations map[string]*TransformAnimation `yaml:"animations"`
}

// LoadManifest loads assets.yaml. Paths inside it are resolved against the
// manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse asset manifest: %w", err)
	}
	dir := filepath.Dir(path)
	for name, t := range m.Textures {
		if t == nil {
			return nil, fmt.Errorf("texture %q: empty entry", name)
		}
		t.Path = resolve(dir, t.Path)
	}
	for name, s := range m.Sounds {
		if s == nil {
			return nil, fmt.Errorf("sound %q: empty entry", name)
		}
		s.Path = resolve(dir, s.Path)
		if s.Volume == 0 {
			s.Volume = 1
		}
	}
	for name, a := range m.Animations {
		if a == nil {
			return nil, fmt.Errorf("animation %q: empty entry", name)
		}
		for i := range a.Keyframes {
			k := &a.Keyframes[i]
			if k.Scale == [2]float32{} {
				k.Scale = [2]float32{1, 1}
			}
			if i > 0 && k.Time < a.Keyframes[i-1].Time {
				return nil, fmt.Errorf("animation %q: keyframes out of order", name)
			}
		}
	}
	return &m, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Assets aggregates every library the game loads.
type Assets struct {
	log        *zap.Logger
	Textures   *Library[*Texture]
	Sounds     *Library[*Sound]
	Animations *Library[*TransformAnimation]
	Prefabs    *PrefabLibrary
}

func NewAssets(log *zap.Logger) *Assets {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assets{
		log:        log,
		Textures:   NewLibrary[*Texture]("texture"),
		Sounds:     NewLibrary[*Sound]("sound"),
		Animations: NewLibrary[*TransformAnimation]("animation"),
		Prefabs:    NewPrefabLibrary(log),
	}
}

// Apply rebuilds the manifest-backed libraries from m.
func (a *Assets) Apply(m *Manifest) {
	a.Textures.Rebuild(m.Textures)
	a.Sounds.Rebuild(m.Sounds)
	a.Animations.Rebuild(m.Animations)
	a.log.Info("assets loaded",
		zap.Int("textures", a.Textures.Len()),
		zap.Int("sounds", a.Sounds.Len()),
		zap.Int("animations", a.Animations.Len()))
}

// Provide registers every library with w so references can resolve.
func (a *Assets) Provide(w *ecs.World) {
	ecs.Provide(w, a.Textures)
	ecs.Provide(w, a.Sounds)
	ecs.Provide(w, a.Animations)
	ecs.Provide(w, a.Prefabs)
}
