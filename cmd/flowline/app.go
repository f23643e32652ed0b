package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rochus-keller/FlowLine2/internal/controller"
	"github.com/rochus-keller/FlowLine2/internal/layout"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/scene"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// app is an open repository together with the services built on it.
type app struct {
	o     *rootOptions
	db    *store.LibSQLPersister
	store *store.MemStore
	// lock serializes writers of store across tool calls and sweeps.
	lock sync.Mutex
}

// openApp opens the repository database, migrating it when needed.
func (o *rootOptions) openApp(ctx context.Context) (*app, error) {
	path := o.cfg.DBPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := store.NewLibSQLPersister(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s, err := store.Open(ctx, db, append(model.StoreOptions(), store.WithLogger(o.logger))...)
	if err != nil {
		db.Close()
		return nil, err
	}
	o.logger.Debug("repository opened", "db_path", path, "repo_id", s.RepoID().String())
	return &app{o: o, db: db, store: s}, nil
}

func (a *app) Close() error { return a.db.Close() }

// bridge returns the configured layout engine, nil when layout is off.
func (a *app) bridge() layout.Bridge {
	engine := a.o.cfg.Layout.Engine
	if engine == "none" {
		return nil
	}
	return layout.NewGraphviz(layout.WithEngine(engine), layout.WithLogger(a.o.logger))
}

// open returns a controller showing diagram.
func (a *app) open(ctx context.Context, diagram store.OID) (*controller.Controller, error) {
	cfg := a.o.cfg
	if !model.IsDiagram(a.store.Type(diagram)) {
		return nil, fmt.Errorf("object %d is not a diagram", diagram)
	}
	c := controller.New(a.store,
		controller.WithBridge(a.bridge()),
		controller.WithLogger(a.o.logger),
		controller.WithOrtho(cfg.Layout.Ortho),
		controller.WithSceneOptions(
			scene.WithReadOnly(cfg.ReadOnly),
			scene.WithStrictSyntax(cfg.StrictSyntax),
		),
	)
	if err := c.Open(ctx, diagram); err != nil {
		return nil, err
	}
	return c, nil
}
