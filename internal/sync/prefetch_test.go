package sync

import (
	"context"
	"testing"
	"time"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
	"fieldnote/internal/remote"
	"fieldnote/internal/resolver"
)

func newTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()

	store, err := cache.Open(":memory:", testLogger(t))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return resolver.New(store, testLogger(t))
}

func TestStorePrefetched(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	err := StorePrefetched(ctx, r, []remote.Experience{
		{
			ID:          "srv-1",
			Title:       "Sourdough starter",
			Description: "day by day",
			InsertedAt:  now,
			UpdatedAt:   now,
			Entries: []remote.Entry{
				{
					ID:           "srv-1-a",
					ExperienceID: "srv-1",
					Data:         []remote.DataObject{{FieldName: "day", Value: "3"}},
					InsertedAt:   now,
					UpdatedAt:    now,
				},
			},
		},
		{ID: "srv-2", Title: "Winter hikes", InsertedAt: now, UpdatedAt: now},
	})
	if err != nil {
		t.Fatalf("StorePrefetched: %v", err)
	}

	exp, err := r.GetExperience(ctx, noteid.New("srv-1"))
	if err != nil {
		t.Fatalf("GetExperience: %v", err)
	}

	if exp.Title != "Sourdough starter" || len(exp.Entries) != 1 {
		t.Errorf("experience = %+v", exp)
	}
	if got := exp.Entries[0].Data[0]; got != (cache.DataObject{FieldName: "day", Value: "3"}) {
		t.Errorf("entry data = %+v", got)
	}
	if exp.Entries[0].ExperienceID != exp.ID {
		t.Errorf("entry parent = %s, want %s", exp.Entries[0].ExperienceID, exp.ID)
	}

	ids, err := r.Experiences().IndexIDs(ctx)
	if err != nil {
		t.Fatalf("IndexIDs: %v", err)
	}
	if len(ids) != 2 || ids[0].String() != "srv-1" || ids[1].String() != "srv-2" {
		t.Errorf("index = %v", ids)
	}
}

func TestStorePrefetchedOverwritesExisting(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	stale := &cache.Experience{ID: noteid.New("srv-9"), Title: "old title"}
	if err := r.Experiences().Put(ctx, stale); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Experiences().AppendToIndex(ctx, stale.ID); err != nil {
		t.Fatalf("AppendToIndex: %v", err)
	}

	err := StorePrefetched(ctx, r, []remote.Experience{
		{ID: "srv-9", Title: "new title"},
	})
	if err != nil {
		t.Fatalf("StorePrefetched: %v", err)
	}

	exp, err := r.GetExperience(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetExperience: %v", err)
	}
	if exp.Title != "new title" {
		t.Errorf("title = %q, want overwritten", exp.Title)
	}

	ids, err := r.Experiences().IndexIDs(ctx)
	if err != nil {
		t.Fatalf("IndexIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("index = %v, want single entry", ids)
	}
}

func TestStorePrefetchedRejectsOfflineID(t *testing.T) {
	r := newTestResolver(t)

	err := StorePrefetched(context.Background(), r, []remote.Experience{
		{ID: "offline:1234", Title: "never stored"},
	})
	if err == nil {
		t.Fatal("expected error for offline id")
	}
}
