package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/config"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	coresys "github.com/quarrygate/engine/internal/core/system"
	"github.com/quarrygate/engine/internal/data"
	"github.com/quarrygate/engine/internal/inspector"
	"github.com/quarrygate/engine/internal/logging"
	"github.com/quarrygate/engine/internal/persist"
	"github.com/quarrygate/engine/internal/physics"
	"github.com/quarrygate/engine/internal/scripting"
	"github.com/quarrygate/engine/internal/system"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            quarrygate  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        tower defense ECB runtime          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main process logic ────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, logs, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner()

	// 3. Scene store: a directory of JSON documents, or Postgres snapshots
	printSection("Scene store")
	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store persist.SceneStore
	switch cfg.Scene.Store {
	case "postgres":
		db, err := persist.NewDB(setupCtx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(setupCtx, db)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printStat("Schema version", int(version))
		store = persist.NewPGStore(db, log)
	default:
		store = persist.NewDirStore(cfg.Scene.Dir)
		printOK("Scene directory " + cfg.Scene.Dir)
	}
	names, err := store.List(setupCtx)
	if err != nil {
		return fmt.Errorf("list scenes: %w", err)
	}
	printStat("Scenes", len(names))
	fmt.Println()

	// 4. Assets
	printSection("Assets")
	w := ecs.NewWorld(log)
	assets := data.NewAssets(log)
	manifest, err := data.LoadManifest(cfg.Assets.Manifest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("asset manifest missing", zap.String("path", cfg.Assets.Manifest))
	case err != nil:
		return fmt.Errorf("assets: %w", err)
	default:
		assets.Apply(manifest)
	}
	printStat("Textures", assets.Textures.Len())
	printStat("Sounds", assets.Sounds.Len())
	printStat("Animations", assets.Animations.Len())

	if _, err := assets.Prefabs.LoadDir(cfg.Assets.PrefabDir); err != nil {
		return fmt.Errorf("prefabs: %w", err)
	}
	printStat("Prefabs", assets.Prefabs.Len())
	assets.Provide(w)

	scripts, err := scripting.NewEngine(cfg.Assets.ScriptDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	printStat("Lua modules", len(scripts.Modules()))
	fmt.Println()

	// 5. Systems
	registry := coresys.NewRegistry(log)
	scenes := system.NewSceneSystem(w, store, assets.Prefabs)
	registry.MustRegister(
		coresys.NewPauseSystem(w),
		coresys.NewEventSystem(w),
		scenes,
	)

	var debug *inspector.Server
	if cfg.Inspector.Enabled {
		debug = inspector.NewServer(cfg.Inspector, log)
		registry.MustRegister(inspector.NewDebugSystem(w, registry, debug.Requests(), scenes, logs))
	}
	registry.MustRegister(component.Systems(w)...)
	registry.MustRegister(physics.Systems(w)...)
	registry.MustRegister(scripting.Systems(w, scripts)...)

	engine := coresys.NewEngine(log, w, registry)
	engine.SetFrameInterval(cfg.Engine.FrameInterval)
	engine.SetMaxFixedSteps(cfg.Engine.MaxFixedSteps)
	engine.SetSceneRequests(scenes)
	if err := configure(engine, cfg.Engine.SystemsFile, log); err != nil {
		return err
	}
	scenes.SetNextScene(cfg.Scene.Initial)

	// 6. Run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printSection("Ready")
	if debug != nil {
		printReady(fmt.Sprintf("Inspector ws://%s/ws", cfg.Inspector.BindAddress))
	}
	printReady(fmt.Sprintf("Game loop (step: %s, frame: %s)", w.FixedStep(), cfg.Engine.FrameInterval))
	fmt.Println()

	engine.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	if debug != nil {
		g.Go(func() error { return debug.ListenAndServe(gctx) })
	}
	err = g.Wait()

	log.Info("shutting down")
	if cfg.Scene.SaveOnExit && scenes.ActiveScene() != "" {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := scenes.SaveScene(saveCtx); err != nil {
			log.Error("scene save failed", zap.Error(err))
		}
		cancel()
	}
	engine.Stop()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	log.Info("stopped")
	return nil
}

// configure applies the systems JSON document. Read problems are logged and
// do not stop the process.
func configure(engine *coresys.Engine, path string, log *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read systems config: %w", err)
	}
	r := serial.NewReader(log.Named("systems"))
	engine.Configure(r, raw)
	if n := len(r.Issues()); n > 0 {
		log.Warn("systems config has issues", zap.String("path", path), zap.Int("issues", n))
	}
	return nil
}
