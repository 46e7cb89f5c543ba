package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/api"
	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/events"
	"github.com/snarg/ta-engine/internal/group"
	"github.com/snarg/ta-engine/internal/modules"
	"github.com/snarg/ta-engine/internal/pipeline"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/speakers"
	"github.com/snarg/ta-engine/internal/storage"
	"github.com/snarg/ta-engine/internal/store"
	"github.com/snarg/ta-engine/internal/transcript"
	"github.com/snarg/ta-engine/internal/watch"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var (
		envFile    = flag.String("env", "", "path to .env file")
		outputDir  = flag.String("out", "", "run output directory (overrides OUTPUT_DIR)")
		inboxDir   = flag.String("inbox", "", "inbox directory to watch (overrides INBOX_DIR)")
		httpAddr   = flag.String("addr", "", "http listen address (overrides HTTP_ADDR)")
		logLevel   = flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
		dbURL      = flag.String("db", "", "postgres url (overrides DATABASE_URL)")
		rerunMode  = flag.String("rerun", "", "reuse|new (overrides RERUN_MODE)")
		moduleList = flag.String("modules", "", "comma-separated modules to run (default: all)")
		groupName  = flag.String("group", "", "group name for multi-transcript runs")
		watchMode  = flag.Bool("watch", false, "watch the inbox directory and serve the API")
		serveMode  = flag.Bool("serve", false, "serve the API without watching")
		listMods   = flag.Bool("list-modules", false, "print registered modules and exit")
	)
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:     *envFile,
		OutputDir:   *outputDir,
		InboxDir:    *inboxDir,
		HTTPAddr:    *httpAddr,
		LogLevel:    *logLevel,
		DatabaseURL: *dbURL,
		RerunMode:   *rerunMode,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	reg := modules.Builtin(cfg)

	if *listMods {
		for _, name := range reg.Names() {
			desc, _ := reg.Get(name)
			fmt.Printf("%-20s %-7s %-4s deps=%s\n",
				name, desc.Category, desc.Tier, strings.Join(desc.Dependencies, ","))
		}
		return
	}

	log.Info().Str("version", version).Msg("ta-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable store is optional: without it cache lookups miss and
	// store-requiring modules skip.
	var st *store.Store
	if cfg.DatabaseURL != "" {
		storeLog := log.With().Str("component", "store").Logger()
		st, err = store.Connect(ctx, cfg.DatabaseURL, storeLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer st.Close()
		if err := st.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
	} else {
		log.Warn().Msg("no DATABASE_URL set, running without durable store")
	}

	var pub *events.Publisher
	if cfg.MQTTBrokerURL != "" {
		pub, err = events.Connect(events.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "events").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer pub.Close()
	}

	mirror, err := storage.New(cfg.S3, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize artifact mirror")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create output directory")
	}

	eng := &engine{
		cfg:     cfg,
		reg:     reg,
		store:   st,
		events:  pub,
		mirror:  mirror,
		modules: splitModules(*moduleList, reg),
		log:     log,
	}

	// One-shot mode: analyze the given transcripts (or directory) and exit.
	if args := flag.Args(); len(args) > 0 {
		if err := eng.runOnce(ctx, args, *groupName); err != nil {
			log.Fatal().Err(err).Msg("run failed")
		}
		return
	}

	if !*watchMode && !*serveMode {
		log.Fatal().Msg("no transcripts given and neither -watch nor -serve set")
	}

	if *watchMode {
		if cfg.InboxDir == "" {
			log.Fatal().Msg("-watch requires INBOX_DIR or -inbox")
		}
		w := watch.NewInboxWatcher(cfg.InboxDir, func(path string) {
			if err := eng.runOnce(ctx, []string{path}, ""); err != nil {
				log.Error().Err(err).Str("file", path).Msg("run failed")
			}
		}, log)
		if err := w.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start inbox watcher")
		}
		defer w.Stop()
	}

	if cfg.RunRetention > 0 {
		pruner := storage.NewRunPruner(cfg.OutputDir, cfg.RunRetention, mirror,
			log.With().Str("component", "pruner").Logger())
		pruner.Start()
		defer pruner.Stop()
	}

	srv := api.NewServer(cfg, st, version, startTime, log.With().Str("component", "http").Logger())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("ta-engine stopped")
}

// engine bundles the long-lived collaborators shared by one-shot and watch
// invocations.
type engine struct {
	cfg     *config.Config
	reg     *registry.Registry
	store   *store.Store
	events  *events.Publisher
	mirror  storage.ArtifactStore
	modules []string
	log     zerolog.Logger
}

func (e *engine) runOnce(ctx context.Context, paths []string, groupName string) error {
	in, err := group.ResolveInput(paths, groupName)
	if err != nil {
		return err
	}

	if in.IsGroup() {
		return e.runGroup(ctx, in)
	}
	return e.runSingle(ctx, in.Members[0].Transcript)
}

func (e *engine) runSingle(ctx context.Context, t *transcript.Transcript) error {
	coord := pipeline.New(pipeline.Options{
		Registry:  e.reg,
		Config:    e.cfg,
		Store:     e.runStore(),
		Events:    e.eventPublisher(),
		OutputDir: e.cfg.OutputDir,
		Log:       e.log.With().Str("component", "pipeline").Logger(),
	})

	sum, err := coord.Run(ctx, t, e.modules)
	if err != nil {
		return err
	}
	e.log.Info().
		Str("run_id", sum.RunID).
		Int("run", len(sum.ModulesRun)).
		Int("cached", len(sum.ModulesCached)).
		Int("skipped", len(sum.ModulesSkipped)).
		Int("failed", len(sum.ModulesFailed)).
		Msg("run complete")

	return e.mirrorRun(ctx, coord.RunDir(), coord.RunID())
}

func (e *engine) runGroup(ctx context.Context, in *group.Input) error {
	runner := group.NewRunner(group.RunnerOptions{
		Registry:  e.reg,
		Config:    e.cfg,
		Store:     e.runStore(),
		Identity:  e.identityService(),
		Events:    e.eventPublisher(),
		OutputDir: e.cfg.OutputDir,
		Version:   version,
		Log:       e.log.With().Str("component", "group").Logger(),
	})

	sum, err := runner.Run(ctx, in, e.modules)
	if err != nil {
		return err
	}
	e.log.Info().
		Str("group_uuid", sum.GroupUUID).
		Int("members", len(sum.MemberRuns)).
		Strs("aggregations", sum.Aggregations).
		Int("warnings", len(sum.Warnings)).
		Msg("group run complete")

	return e.mirrorRun(ctx, sum.GroupDir, "groups/"+sum.GroupUUID)
}

func (e *engine) mirrorRun(ctx context.Context, dir, key string) error {
	if e.mirror == nil {
		return nil
	}
	return storage.MirrorRun(ctx, e.mirror, dir, key,
		e.log.With().Str("component", "storage").Logger())
}

// runStore returns the store as the pipeline interface, keeping the typed
// nil out of the interface value.
func (e *engine) runStore() pipeline.RunStore {
	if e.store == nil {
		return nil
	}
	return e.store
}

func (e *engine) identityService() speakers.IdentityService {
	if e.store == nil {
		return nil
	}
	return e.store
}

func (e *engine) eventPublisher() pipeline.EventPublisher {
	if e.events == nil {
		return nil
	}
	return e.events
}

// splitModules parses -modules; empty means every registered module.
func splitModules(s string, reg *registry.Registry) []string {
	if s == "" {
		return reg.Names()
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
