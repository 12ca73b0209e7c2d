package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"fieldnote/internal/broadcast"
	"fieldnote/internal/cache"
	"fieldnote/internal/config"
	"fieldnote/internal/remote"
	"fieldnote/internal/resolver"
	"fieldnote/internal/sync"
	"fieldnote/internal/userfile"
)

// app bundles the wired-up engine for commands that operate on the cache:
// store, resolver, broadcaster, remote client, and uploader. Commands that
// only touch the user file (login, offline, online) do not need it.
type app struct {
	cc       *CLIContext
	store    *cache.SQLiteStore
	resolver *resolver.Resolver
	bus      *broadcast.Broadcaster
	client   *remote.Client
	uploader *sync.Uploader
	userPath string
}

// openApp opens the cache database and wires the engine around it.
func openApp(cc *CLIContext) (*app, error) {
	dbPath := cc.Config.Cache.Path
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, userfile.DirPerms); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	store, err := cache.Open(dbPath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	userPath := config.DefaultUserPath()

	client := remote.NewClient(
		cc.Config.Remote.BaseURL,
		&http.Client{Timeout: cc.Config.RequestTimeout()},
		userfile.TokenSource{Path: userPath},
		cc.Logger,
	)

	res := resolver.New(store, cc.Logger)
	bus := broadcast.New(cc.Logger)

	return &app{
		cc:       cc,
		store:    store,
		resolver: res,
		bus:      bus,
		client:   client,
		uploader: sync.NewUploader(res, client, bus, cc.Logger),
		userPath: userPath,
	}, nil
}

// Close releases the broadcaster and the cache database.
func (a *app) Close() {
	a.bus.Close()

	if err := a.store.Close(); err != nil {
		a.cc.Logger.Warn("closing cache", "error", err.Error())
	}
}

// currentUser returns the logged-in user record, or nil when nobody is
// logged in.
func (a *app) currentUser() (*userfile.User, error) {
	f, err := userfile.Load(a.userPath)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, nil //nolint:nilnil // sentinel for "not logged in"
	}

	return f.User, nil
}
