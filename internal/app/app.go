// Package app assembles the engine from configuration. Both binaries start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/classifier"
	"github.com/keshon/heartline/internal/config"
	"github.com/keshon/heartline/internal/engine"
	"github.com/keshon/heartline/internal/logging"
	"github.com/keshon/heartline/internal/narrative"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// App owns the logger, store and engine for one process.
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	Store  storage.Store
	Engine *engine.Engine

	closers []io.Closer
}

// New opens logging and storage and builds the engine. Close releases both.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Pretty: cfg.LogPretty,
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, closers: []io.Closer{logCloser}}

	so := cfg.Storage()
	so.Log = log
	store, err := storage.Open(ctx, so)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	a.Store = store
	a.closers = append([]io.Closer{store}, a.closers...)

	provider, err := ai.NewProvider(cfg.AI())
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		cl  classifier.Classifier
		gen narrative.Generator
	)
	if provider != nil {
		cl = classifier.NewLLM(provider, cfg.ClassifierRPS, log)
		gen = narrative.NewLLM(provider, cfg.ClassifierRPS, log)
		log.Info().Str("model", cfg.AIModel).Msg("using model-backed classifier and narrative")
	} else {
		log.Info().Msg("no AI endpoint configured, using heuristic classifier and templates")
	}

	a.Engine = engine.New(store, cl, gen, engine.Options{
		Cleanup:     cfg.Cleanup(),
		ThreadsMin:  cfg.ThreadsMin,
		ThreadsMax:  cfg.ThreadsMax,
		ProfilePath: cfg.ProfilePath,
	}, log)

	log.Info().Str("backend", cfg.StoreBackend).Msg("engine ready")
	return a, nil
}

// Close closes the store, then the log file.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
