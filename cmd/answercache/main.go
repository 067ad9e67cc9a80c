// =============================================================================
// Glinax answer-cache operations CLI
// =============================================================================
// Operator tooling for the response cache shared by the assistant backend.
//
// Usage:
//
//	answercache version                          # show version info
//	answercache health  [-config config.yaml]    # ping the persistent store
//	answercache stats   [-config config.yaml]    # both tiers' statistics
//	answercache invalidate [-config ...] KNUST   # drop matching entries
//	answercache warmup  [-config ...] known.yaml # report uncached queries
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/glinax/answercache/cache"
	"github.com/glinax/answercache/config"
	"github.com/glinax/answercache/internal/metrics"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("answercache %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "health":
		err = runHealth(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "invalidate":
		err = runInvalidate(os.Args[2:])
	case "warmup":
		err = runWarmup(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`answercache - Glinax response cache operations

Commands:
  version                           show version information
  health      [-config FILE]        ping the persistent store
  stats       [-config FILE]        print both tiers' statistics
  invalidate  [-config FILE] PATTERN  remove entries whose key matches PATTERN
  warmup      [-config FILE] FILE   check cache presence for known queries`)
}

// setup loads configuration and wires logger, store, and manager.
func setup(args []string, command string) (*cache.Manager, cache.PersistentStore, *zap.Logger, []string, error) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	store, err := buildStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	mgr := cache.NewManager(cfg.Cache, store, collector, logger)
	return mgr, store, logger, fs.Args(), nil
}

// buildStore constructs the configured persistent tier, or nil for a
// memory-only cache.
func buildStore(cfg *config.Config, logger *zap.Logger) (cache.PersistentStore, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return cache.NewRedisStore(cfg.Redis, logger)
	case config.BackendMongo:
		return cache.NewMongoStore(cfg.Mongo, logger)
	case config.BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func teardown(mgr *cache.Manager, store cache.PersistentStore, logger *zap.Logger) {
	mgr.Close()
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

func runHealth(args []string) error {
	mgr, store, logger, _, err := setup(args, "health")
	if err != nil {
		return err
	}
	defer teardown(mgr, store, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mgr.Ping(ctx); err != nil {
		return fmt.Errorf("persistent store unhealthy: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func runStats(args []string) error {
	mgr, store, logger, _, err := setup(args, "stats")
	if err != nil {
		return err
	}
	defer teardown(mgr, store, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return printJSON(mgr.Stats(ctx))
}

func runInvalidate(args []string) error {
	mgr, store, logger, rest, err := setup(args, "invalidate")
	if err != nil {
		return err
	}
	defer teardown(mgr, store, logger)

	if len(rest) != 1 {
		return fmt.Errorf("usage: answercache invalidate [-config FILE] PATTERN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed := mgr.Invalidate(ctx, rest[0])
	fmt.Printf("removed %d entries\n", removed)
	return nil
}

func runWarmup(args []string) error {
	mgr, store, logger, rest, err := setup(args, "warmup")
	if err != nil {
		return err
	}
	defer teardown(mgr, store, logger)

	if len(rest) != 1 {
		return fmt.Errorf("usage: answercache warmup [-config FILE] QUERIES_FILE")
	}

	queries, err := loadWarmQueries(rest[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	return printJSON(mgr.WarmUp(ctx, queries))
}

// loadWarmQueries reads a YAML list of known queries:
//
//	- text: "Tell me about KNUST fees"
//	  context: "KNUST"
//	- text: "UG admission deadline"
func loadWarmQueries(path string) ([]cache.WarmQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file: %w", err)
	}
	var queries []cache.WarmQuery
	if err := yaml.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("failed to parse queries file: %w", err)
	}
	return queries, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
