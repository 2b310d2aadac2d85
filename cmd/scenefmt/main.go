// scenefmt checks scene and prefab JSON documents against the registered
// component types and rewrites them with canonical indentation.
//
// Usage:
//
//	scenefmt [--prefabs dir] [-w | --expand] <file|dir>...
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/data"
	"github.com/quarrygate/engine/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// component types referenced by documents
	_ "github.com/quarrygate/engine/internal/component"
	_ "github.com/quarrygate/engine/internal/physics"
	_ "github.com/quarrygate/engine/internal/scripting"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	prefabDir string
	write     bool
	expand    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "scenefmt [flags] <file|dir>...",
		Short:        "Check and format scene and prefab documents",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.prefabDir, "prefabs", "assets/prefabs", "prefab directory used for Archetype keys")
	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "rewrite files with canonical indentation")
	cmd.Flags().BoolVar(&opts.expand, "expand", false, "print documents with archetypes and defaults expanded")
	cmd.MarkFlagsMutuallyExclusive("write", "expand")
	return cmd
}

func run(opts *options, args []string, stdout, stderr io.Writer) error {
	prefabs := data.NewPrefabLibrary(nil)
	if _, err := os.Stat(opts.prefabDir); err == nil {
		if _, err := prefabs.LoadDir(opts.prefabDir); err != nil {
			return fmt.Errorf("load prefabs: %w", err)
		}
	}

	files, err := collect(args)
	if err != nil {
		return err
	}

	bad := 0
	for _, f := range files {
		ok, err := process(opts, prefabs, f, stdout, stderr)
		if err != nil {
			return err
		}
		if !ok {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d files need attention", bad, len(files))
	}
	return nil
}

// collect expands directories to their *.json files, sorted.
func collect(args []string) ([]string, error) {
	var files []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, a)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(a, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

// process reports whether f is clean: no read errors and, unless writing,
// already formatted.
func process(opts *options, prefabs *data.PrefabLibrary, f string, stdout, stderr io.Writer) (bool, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f, err)
	}

	doc, issues := read(prefabs, raw)
	ok := true
	for _, i := range issues {
		fmt.Fprintf(stderr, "%s: %s\n", f, i)
		if i.Severity == serial.SeverityError {
			ok = false
		}
	}
	if !ok {
		return false, nil
	}

	if opts.expand {
		out, err := serial.MarshalIndent(doc)
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", f, err)
		}
		fmt.Fprintf(stdout, "%s\n", out)
		return true, nil
	}

	formatted, err := canonical(raw)
	if err != nil {
		return false, fmt.Errorf("indent %s: %w", f, err)
	}
	if bytes.Equal(raw, formatted) {
		return true, nil
	}
	if !opts.write {
		fmt.Fprintf(stderr, "%s: not formatted\n", f)
		return false, nil
	}
	if err := os.WriteFile(f, formatted, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", f, err)
	}
	fmt.Fprintf(stdout, "formatted %s\n", f)
	return true, nil
}

// read parses raw as a scene when it has an "Entities" key, otherwise as a
// single entity.
func read(prefabs *data.PrefabLibrary, raw []byte) (serial.Serializable, []serial.Issue) {
	r := ecs.WithPrefabs(serial.NewReader(zap.NewNop()), prefabs)
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err == nil {
		if _, ok := keys["Entities"]; ok {
			scene := &system.Scene{}
			r.Read(scene, raw)
			return scene, r.Issues()
		}
	}
	e := ecs.NewEntity("")
	r.Read(e, raw)
	return e, r.Issues()
}

func canonical(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
