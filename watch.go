package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fieldnote/internal/broadcast"
	"fieldnote/internal/connstate"
	"fieldnote/internal/noteid"
	"fieldnote/internal/remote"
	"fieldnote/internal/sync"
	"fieldnote/internal/userfile"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the connectivity engine in the foreground",
		Long: `Run the long-lived engine: a websocket heartbeat observes connectivity,
the state machine tracks the unsynced count and prefetch state, and changes
to the user file (login, logout, manual overrides from another terminal)
are picked up immediately. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := openApp(cc)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	machine := connstate.NewMachine(cc.Logger)
	effects := newWatchEffects(a, machine)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		effects.Run(gctx)
		return nil
	})

	if wsURL := cc.Config.Remote.HeartbeatURL; wsURL != "" {
		hb := remote.NewHeartbeat(wsURL, a.bus, manualOverrideActive(a.userPath), cc.Logger)

		g.Go(func() error {
			hb.Run(gctx)
			return nil
		})
	} else {
		cc.Logger.Warn("heartbeat disabled, connectivity only changes via manual override")
	}

	g.Go(func() error {
		return watchUserFile(gctx, a, effects)
	})

	// Seed the machine: user presence, any manual override, and the cache
	// restore gate.
	if err := publishUserFileState(ctx, a, effects, true); err != nil {
		return err
	}

	go func() {
		select {
		case <-a.store.Restored():
			effects.Dispatch(ctx, connstate.CachePersisted{
				Connected: machine.Current().HasConnection,
			})
		case <-ctx.Done():
		}
	}()

	cc.Statusf("Watching (ctrl-c to stop)\n")

	return g.Wait()
}

// newWatchEffects wires the effect layer: unsynced recounts come from the
// resolver, prefetches go through the remote client and land in the cache
// as a one-shot prefetch query result.
func newWatchEffects(a *app, machine *connstate.Machine) *connstate.Effects {
	countUnsynced := func(ctx context.Context) (int, error) {
		set, err := a.resolver.Unsynced(ctx)
		if err != nil {
			return 0, err
		}

		return set.Count(), nil
	}

	prefetch := func(ctx context.Context, ids []noteid.ID) error {
		raw := make([]string, len(ids))
		for i, id := range ids {
			raw[i] = id.String()
		}

		exps, err := a.client.PrefetchExperiences(ctx, raw)
		if err != nil {
			return err
		}

		return sync.StorePrefetched(ctx, a.resolver, exps)
	}

	return connstate.NewEffects(machine, a.bus, countUnsynced, prefetch,
		a.cc.Config.PrefetchDebounce(), a.cc.Logger)
}

// manualOverrideActive returns the heartbeat's suppression predicate: true
// whenever the user file carries a manual connectivity override.
func manualOverrideActive(userPath string) func() bool {
	return func() bool {
		f, err := userfile.Load(userPath)
		if err != nil {
			return false
		}

		return f != nil && f.Connectivity != nil
	}
}

// watchUserFile watches the user file for changes made by other processes
// (login, logout, offline/online) and republishes the resulting state.
func watchUserFile(ctx context.Context, a *app, effects *connstate.Effects) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating user file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic rename replaces the inode.
	// The directory may not exist before the first login.
	dir := filepath.Dir(a.userPath)
	if err := os.MkdirAll(dir, userfile.DirPerms); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Name != a.userPath {
				continue
			}

			if err := publishUserFileState(ctx, a, effects, false); err != nil {
				a.cc.Logger.Warn("reloading user file", "error", err.Error())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			a.cc.Logger.Warn("user file watcher", "error", err.Error())
		}
	}
}

// publishUserFileState reads the user file and feeds its contents to the
// engine: user presence as a user-changed event, a manual override as a
// connectivity event. initial additionally seeds the disconnected baseline
// when no override is present. With a user present it also requests a
// prefetch of the cached permanent experiences.
func publishUserFileState(ctx context.Context, a *app, effects *connstate.Effects, initial bool) error {
	f, err := userfile.Load(a.userPath)
	if err != nil {
		return err
	}

	hasUser := f != nil && f.User != nil

	a.bus.Publish(broadcast.Custom{Kind: broadcast.KindUserChanged, Payload: hasUser})

	if f != nil && f.Connectivity != nil {
		a.bus.Publish(broadcast.ConnectionChanged{HasConnection: f.Connectivity.Connected})
	} else if initial {
		// Auto mode starts disconnected until the heartbeat reports in.
		a.bus.Publish(broadcast.ConnectionChanged{HasConnection: false})
	}

	if effects == nil || !hasUser {
		return nil
	}

	// Dispatch directly rather than waiting on the bus round trip, so the
	// prefetch request never lands before the user presence does.
	effects.Dispatch(ctx, connstate.UserChanged{HasUser: true})

	ids, err := permanentExperienceIDs(ctx, a)
	if err != nil {
		return fmt.Errorf("listing cached experiences for prefetch: %w", err)
	}

	if len(ids) > 0 {
		effects.Dispatch(ctx, connstate.ExperiencesToPrefetch{IDs: ids})
	}

	return nil
}

// permanentExperienceIDs returns the server-assigned ids in the cached
// index. Offline experiences have nothing to prefetch.
func permanentExperienceIDs(ctx context.Context, a *app) ([]noteid.ID, error) {
	all, err := a.resolver.Experiences().IndexIDs(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]noteid.ID, 0, len(all))
	for _, id := range all {
		if !id.IsOffline() {
			ids = append(ids, id)
		}
	}

	return ids, nil
}
