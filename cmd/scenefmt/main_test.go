package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestShippedAssetsAreClean(t *testing.T) {
	prefabs := filepath.Join("..", "..", "assets", "prefabs")
	_, stderr, err := execute(t, "--prefabs", prefabs, prefabs, filepath.Join("..", "..", "assets", "scenes"))
	require.NoError(t, err, stderr)
	assert.Empty(t, stderr)
}

func TestExpandInlinesArchetypes(t *testing.T) {
	dir := t.TempDir()
	prefabs := filepath.Join(dir, "prefabs")
	require.NoError(t, os.Mkdir(prefabs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prefabs, "crate.json"),
		[]byte(`{"Components":[{"Transform":{"translation":[1,1]}},{"Lifetime":{"Duration":3}}]}`), 0o644))
	scene := filepath.Join(dir, "level.json")
	require.NoError(t, os.WriteFile(scene,
		[]byte(`{"Name":"level","Entities":[{"name":"c","Archetype":"crate"}]}`), 0o644))

	stdout, _, err := execute(t, "--prefabs", prefabs, "--expand", scene)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Archetype")
	assert.Contains(t, stdout, `"Lifetime"`)
	assert.Contains(t, stdout, `"Duration": 3`)
}

func TestCheckAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thing.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"thing","Components":[{"Transform":{}}]}`), 0o644))

	_, stderr, err := execute(t, "--prefabs", dir, path)
	assert.Error(t, err)
	assert.Contains(t, stderr, "not formatted")

	stdout, _, err := execute(t, "--prefabs", dir, "-w", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "formatted")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"thing\",\n  \"Components\": [\n    {\n      \"Transform\": {}\n    }\n  ]\n}\n", string(got))

	_, _, err = execute(t, "--prefabs", dir, path)
	assert.NoError(t, err)
}

func TestReadErrorsFail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Components":[{"Teleporter":{}}]}`), 0o644))

	_, stderr, err := execute(t, "--prefabs", dir, "-w", path)
	assert.Error(t, err)
	assert.Contains(t, stderr, "error at Components[0].Teleporter")
}
