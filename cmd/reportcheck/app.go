package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/alexisbeaulieu97/reportcheck/internal/config"
	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/export"
	"github.com/alexisbeaulieu97/reportcheck/internal/llm"
	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/notify"
	"github.com/alexisbeaulieu97/reportcheck/internal/objectstore"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/runstore"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

const exportPrefix = "exports"

// app holds the collaborators a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	env       llm.Env
	gateway   *llm.Gateway
	prompts   *prompt.Store
	publisher *events.LoggingPublisher
	runs      runstore.Store
	bucket    objectstore.Bucket
	closers   []io.Closer
}

type appOptions struct {
	// promptDefaults replace the built-in templates, e.g. from a project.
	promptDefaults map[string]string
	// logFile receives a JSON copy of every log entry.
	logFile string
	// silent drops console logging, e.g. while the TUI owns the terminal.
	silent bool
}

// newApp loads .env files and configuration and wires the services.
func newApp(ctx context.Context, flags *rootFlags, opts appOptions) (*app, error) {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return nil, newCommandError("start", "loading environment files", err, "Check the --env-file paths.")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, newCommandError("start", "loading configuration", err, "Fix the configuration file or pass --config.")
	}

	a := &app{cfg: cfg, env: llm.OSEnv}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	human := (cfg.Log.Human || term.IsTerminal(int(os.Stderr.Fd()))) && !flags.logJSON
	logOpts := logger.Options{Level: level, HumanReadable: human}
	if opts.silent {
		logOpts.Writer = io.Discard
	}
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, newCommandError("start", "opening log file", err, "Check that the project directory is writable.")
		}
		a.closers = append(a.closers, f)
		logOpts.Extra = f
	}
	a.log, err = logger.New(logOpts)
	if err != nil {
		a.close()
		return nil, err
	}

	a.publisher = events.NewLoggingPublisher(a.log)
	a.gateway = llm.NewGateway(cfg.Catalog(), llm.WithEnv(a.env), llm.WithLogger(a.log))

	a.prompts, err = loadPrompts(cfg.Prompts, opts.promptDefaults)
	if err != nil {
		a.close()
		return nil, newCommandError("start", "loading prompt templates", err, "Check the prompts section of the configuration.")
	}

	a.runs, err = a.openRunStore(ctx)
	if err != nil {
		a.close()
		return nil, newCommandError("start", "opening run store", err, "Check the runs and object_store sections of the configuration.")
	}

	return a, nil
}

// loadPrompts layers templates: built-ins, then the prompts directory, then
// explicit per-stage files, then caller defaults such as a project directory.
func loadPrompts(cfg config.Prompts, extra map[string]string) (*prompt.Store, error) {
	defaults := map[string]string{}
	if cfg.Dir != "" {
		fromDir, err := prompt.LoadDir(cfg.Dir)
		if err != nil {
			return nil, err
		}
		for id, text := range fromDir {
			defaults[id] = text
		}
	}
	for id, path := range cfg.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", id, err)
		}
		defaults[id] = string(data)
	}
	for id, text := range extra {
		defaults[id] = text
	}
	return prompt.NewStore(prompt.WithDefaults(defaults)), nil
}

func (a *app) objectBucket(ctx context.Context) (objectstore.Bucket, error) {
	if a.bucket != nil {
		return a.bucket, nil
	}
	oc := a.cfg.ObjectStore
	if oc == nil {
		return nil, rcerrors.NewConfigurationError("object_store", "object_store section")
	}

	var missing []string
	access, secret := a.env(oc.AccessKeyEnv), a.env(oc.SecretKeyEnv)
	if access == "" {
		missing = append(missing, oc.AccessKeyEnv)
	}
	if secret == "" {
		missing = append(missing, oc.SecretKeyEnv)
	}
	if len(missing) > 0 {
		return nil, rcerrors.NewConfigurationError("object_store", missing...)
	}

	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:    oc.Endpoint,
		Bucket:      oc.Bucket,
		Region:      oc.Region,
		AccessKey:   access,
		SecretKey:   secret,
		UseSSL:      oc.UseSSL,
		InsecureTLS: oc.InsecureTLS,
	})
	if err != nil {
		return nil, err
	}
	a.bucket = store
	return store, nil
}

func (a *app) openRunStore(ctx context.Context) (runstore.Store, error) {
	switch a.cfg.Runs.Backend {
	case config.RunsFile:
		return runstore.NewFile(a.cfg.Runs.Dir)
	case config.RunsS3:
		bucket, err := a.objectBucket(ctx)
		if err != nil {
			return nil, err
		}
		return runstore.NewObject(bucket, a.cfg.Runs.Prefix), nil
	default:
		return runstore.NewMemory(), nil
	}
}

// service builds the review service.
func (a *app) service() *review.Service {
	return review.NewService(a.gateway, a.prompts,
		review.WithRetry(a.cfg.RetryPolicy()),
		review.WithRecorder(a.runs),
		review.WithEvents(a.publisher),
		review.WithLogger(a.log),
		review.WithDefaultModel(a.cfg.DefaultModel),
	)
}

// sinks opens the configured export targets. Targets that cannot be opened
// are logged and left out.
func (a *app) sinks(ctx context.Context) []export.Sink {
	var sinks []export.Sink
	if table, err := a.sqlSink(ctx); err != nil {
		a.log.Error(err, "sql export disabled")
	} else if table != nil {
		sinks = append(sinks, table)
	}

	if a.cfg.Export.Objects {
		bucket, err := a.objectBucket(ctx)
		if err != nil {
			a.log.Error(err, "object export disabled")
		} else {
			sinks = append(sinks, export.NewObjectSink(bucket, exportPrefix))
		}
	}
	return sinks
}

func (a *app) sqlSink(ctx context.Context) (*export.SQLSink, error) {
	ec := a.cfg.Export
	if ec.Driver == "" {
		return nil, nil
	}
	dsn := a.env(ec.DSNEnv)
	if dsn == "" {
		return nil, rcerrors.NewConfigurationError("export", ec.DSNEnv)
	}
	sink, err := export.OpenSQL(ctx, ec.Driver, dsn, ec.Table)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sink)
	return sink, nil
}

func (a *app) notifier() (notify.Notifier, error) {
	nc := a.cfg.Notify
	if nc.DiscordTokenEnv == "" {
		return notify.Nop{}, nil
	}
	token := a.env(nc.DiscordTokenEnv)
	if token == "" {
		return nil, rcerrors.NewConfigurationError("discord", nc.DiscordTokenEnv)
	}
	d, err := notify.NewDiscord(token, nc.DiscordChannel)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, d)
	return d, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
