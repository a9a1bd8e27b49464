// Command sfnc compiles host-language orchestrator functions into
// state-machine definitions and writes them to a build directory, the
// CLI entry point around the root sfnc package.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/r3e-network/sfnc/domain/attrs"
	"github.com/r3e-network/sfnc/domain/compiler"
	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/hostlang"
	"github.com/r3e-network/sfnc/infrastructure/registrystore"
	"github.com/r3e-network/sfnc/internal/httpapi"
	"github.com/r3e-network/sfnc/internal/tokenstore"
	"github.com/r3e-network/sfnc/internal/watch"
	"github.com/r3e-network/sfnc/pkg/config"
	"github.com/r3e-network/sfnc/pkg/logger"
	"github.com/r3e-network/sfnc/sfnc"

	"github.com/go-redis/redis/v8"
)

func main() {
	srcDir := flag.String("dir", "", "directory of host-language source files to compile (one function per file)")
	outDir := flag.String("out", "build", "directory to write compiled state-machine JSON into")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	watchFlag := flag.Bool("watch", false, "recompile on a schedule and log state-ID drift")
	serveFlag := flag.Bool("serve", false, "run the inspector HTTP surface alongside compilation")
	registryDSN := flag.String("registry-dsn", "", "Postgres DSN for the construct registry (in-memory when empty)")
	express := flag.Bool("express", false, "compile as Express (synchronous) state machines")
	flag.Parse()

	if strings.TrimSpace(*srcDir) == "" {
		log.Fatal("-dir is required")
	}

	var cfg *config.Config
	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		loaded, err := config.LoadFile(trimmed)
		if err != nil {
			log.Fatalf("load config %s: %v", trimmed, err)
		}
		cfg = loaded
	} else {
		cfg = config.New()
	}

	log0 := logger.New(cfg.Logging)

	registry, closeRegistry := openRegistry(*registryDSN, cfg, log0)
	defer closeRegistry()

	symbols := make(map[string]units.CallableRef)
	stack := &fileStackHandle{outDir: *outDir}
	decorator := sfnc.New(stack, symbols, sfnc.WithRegistry(registry))

	rootCtx := context.Background()

	names, err := compileDir(rootCtx, decorator, *srcDir, *express, cfg.Compiler.DefaultMapConcurrency)
	if err != nil {
		log.Fatalf("compile %s: %v", *srcDir, err)
	}
	log0.WithField("count", len(names)).WithField("dir", *srcDir).Info("compiled source directory")

	var watcher *watch.Watcher
	if *watchFlag || cfg.Watch.Enabled {
		watcher = watch.New(names, recompileFunc(symbols, *srcDir, *express, cfg.Compiler.DefaultMapConcurrency), log0)
		schedule := cfg.Watch.CronSchedule
		if schedule == "" {
			schedule = "@every 30s"
		}
		if err := watcher.Start(schedule); err != nil {
			log.Fatalf("start watcher: %v", err)
		}
		defer watcher.Stop()
	}

	var server *httpapi.Server
	if *serveFlag {
		var opts []httpapi.Option
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			opts = append(opts, httpapi.WithTokenStore(tokenstore.New(rdb, 0)))
		}
		server = httpapi.New(cfg.Auth, cfg.Compiler, symbols, log0, nil, opts...)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

		serveCtx, cancel := context.WithCancel(rootCtx)
		defer cancel()
		go func() {
			if err := server.Run(serveCtx, addr); err != nil {
				log.Fatalf("inspector server: %v", err)
			}
		}()
	}

	if !*serveFlag && watcher == nil {
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown inspector: %v", err)
		}
	}
}

// compileDir decorates every *.js file directly under dir, one
// state machine per file named after its basename.
func compileDir(ctx context.Context, d *sfnc.Decorator, dir string, express bool, mapConcurrency int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".js" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		path := filepath.Join(dir, entry.Name())
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		_, err = d.Decorate(ctx, sfnc.Spec{
			MachineName:    name,
			Filename:       path,
			Source:         string(source),
			Express:        express,
			MapConcurrency: mapConcurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// recompileFunc builds a watch.RecompileFunc that re-reads name's source
// file from dir and renders it, without going through the decorator's
// deploy/registry-write path — the watcher only needs a fresh Document
// to diff against the previous one, not a redeploy on every tick.
func recompileFunc(symbols map[string]units.CallableRef, dir string, express bool, mapConcurrency int) watch.RecompileFunc {
	return func(ctx context.Context, name string) (*serializer.Document, error) {
		path := filepath.Join(dir, name+".js")
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		a, err := attrs.Collect(path, string(source), nil, nil)
		if err != nil {
			return nil, err
		}
		prog, err := hostlang.Parse(path, string(source))
		if err != nil {
			return nil, err
		}
		comp := compiler.New(symbols, compiler.Options{Express: express, DefaultMapConcurrency: mapConcurrency})
		result, err := comp.Compile(prog.Func, a)
		if err != nil {
			return nil, err
		}
		return serializer.Render(result.Graph)
	}
}

// fileStackHandle is the CLI's local stand-in for a deployed CDK
// construct: it writes the rendered definition to outDir and uses the
// machine name as its construct ID, since no real CDK binding is wired
// in (out of scope per spec.md §1).
type fileStackHandle struct {
	outDir string
}

func (f *fileStackHandle) Deploy(ctx context.Context, machineName string, def *serializer.Document, express bool) (string, error) {
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(f.outDir, machineName+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return "local:" + machineName, nil
}

func openRegistry(dsn string, cfg *config.Config, log0 *logger.Logger) (registrystore.Store, func()) {
	if strings.TrimSpace(dsn) == "" {
		return registrystore.NewMemoryStore(), func() {}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := registrystore.Migrate(db); err != nil {
			log.Fatalf("migrate construct registry: %v", err)
		}
	}
	log0.Info("using postgres-backed construct registry")
	return registrystore.NewPostgresStore(db), func() { db.Close() }
}
