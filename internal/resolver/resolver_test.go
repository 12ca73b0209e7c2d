package resolver

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()

	s, err := cache.Open(":memory:", testLogger(t))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return New(s, testLogger(t))
}

func TestCreateOfflineExperience(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	exp, err := r.CreateOfflineExperience(ctx, CreateExperienceInput{
		Title:       "Morning runs",
		Description: "pace and route",
		Entries: [][]cache.DataObject{
			{{FieldName: "pace", Value: "5:30"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateOfflineExperience: %v", err)
	}

	if !exp.ID.IsOffline() {
		t.Errorf("new experience id %s is not offline", exp.ID)
	}
	if len(exp.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(exp.Entries))
	}
	if !exp.Entries[0].ID.IsOffline() {
		t.Errorf("seed entry id %s is not offline", exp.Entries[0].ID)
	}
	if got := exp.Entries[0].ExperienceID; !got.Equal(exp.ID) {
		t.Errorf("seed entry parent = %s, want %s", got, exp.ID)
	}

	// The create must be visible through a plain read and in the index.
	got, err := r.GetExperience(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExperience: %v", err)
	}
	if got.Title != "Morning runs" {
		t.Errorf("title = %q", got.Title)
	}

	ids, err := r.Experiences().IndexIDs(ctx)
	if err != nil {
		t.Fatalf("IndexIDs: %v", err)
	}
	if len(ids) != 1 || !ids[0].Equal(exp.ID) {
		t.Errorf("index = %v, want [%s]", ids, exp.ID)
	}
}

func TestCreateOfflineExperienceRejectsEmptyTitle(t *testing.T) {
	r := newTestResolver(t)

	if _, err := r.CreateOfflineExperience(context.Background(), CreateExperienceInput{}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestCreateOfflineExperienceNormalizesTitle(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	// "é" as combining sequence; stored form must be the composed one.
	exp, err := r.CreateOfflineExperience(ctx, CreateExperienceInput{Title: "café"})
	if err != nil {
		t.Fatalf("CreateOfflineExperience: %v", err)
	}

	if exp.Title != "café" {
		t.Errorf("title = %q, want composed form", exp.Title)
	}
}

func TestCreateOfflineEntryUnderOfflineParent(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	exp, err := r.CreateOfflineExperience(ctx, CreateExperienceInput{Title: "Sleep"})
	if err != nil {
		t.Fatalf("CreateOfflineExperience: %v", err)
	}

	entry, parent, err := r.CreateOfflineEntry(ctx, exp.ID, []cache.DataObject{
		{FieldName: "hours", Value: "7.5"},
	})
	if err != nil {
		t.Fatalf("CreateOfflineEntry: %v", err)
	}

	if !entry.ID.IsOffline() {
		t.Errorf("entry id %s is not offline", entry.ID)
	}
	if len(parent.Entries) != 1 {
		t.Fatalf("parent has %d entries, want 1", len(parent.Entries))
	}

	// Offline parents never enter the ledger.
	ledgered, err := r.Ledger().IDs(ctx)
	if err != nil {
		t.Fatalf("Ledger.IDs: %v", err)
	}
	if len(ledgered) != 0 {
		t.Errorf("ledger = %v, want empty", ledgered)
	}
}

func TestCreateOfflineEntryUnderPermanentParent(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	permID := noteid.New("exp-100")
	seed := &cache.Experience{
		ID:         permID,
		Title:      "Reading",
		InsertedAt: time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := r.Experiences().Put(ctx, seed); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Experiences().AppendToIndex(ctx, permID); err != nil {
		t.Fatalf("AppendToIndex: %v", err)
	}

	entry, parent, err := r.CreateOfflineEntry(ctx, permID, nil)
	if err != nil {
		t.Fatalf("CreateOfflineEntry: %v", err)
	}

	if !entry.ID.IsOffline() {
		t.Errorf("entry id %s is not offline", entry.ID)
	}
	if parent.ID.IsOffline() {
		t.Errorf("parent id %s must stay permanent", parent.ID)
	}

	ledgered, err := r.Ledger().IDs(ctx)
	if err != nil {
		t.Fatalf("Ledger.IDs: %v", err)
	}
	if len(ledgered) != 1 || !ledgered[0].Equal(permID) {
		t.Errorf("ledger = %v, want [%s]", ledgered, permID)
	}
}

func TestCreateOfflineEntryMissingParent(t *testing.T) {
	r := newTestResolver(t)

	_, _, err := r.CreateOfflineEntry(context.Background(), noteid.New("exp-999"), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetExperienceNotFound(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.GetExperience(context.Background(), noteid.New("exp-1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetExperienceEventually(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	exp, err := r.CreateOfflineExperience(ctx, CreateExperienceInput{Title: "Walks"})
	if err != nil {
		t.Fatalf("CreateOfflineExperience: %v", err)
	}

	// The test store signals restore on open, so this returns promptly.
	got, err := r.GetExperienceEventually(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExperienceEventually: %v", err)
	}
	if !got.ID.Equal(exp.ID) {
		t.Errorf("got %s, want %s", got.ID, exp.ID)
	}
}

func TestDeleteExperience(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	exp, err := r.CreateOfflineExperience(ctx, CreateExperienceInput{Title: "Temp"})
	if err != nil {
		t.Fatalf("CreateOfflineExperience: %v", err)
	}

	if err := r.DeleteExperience(ctx, exp.ID); err != nil {
		t.Fatalf("DeleteExperience: %v", err)
	}

	if _, err := r.GetExperience(ctx, exp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete err = %v, want ErrNotFound", err)
	}

	ids, err := r.Experiences().IndexIDs(ctx)
	if err != nil {
		t.Fatalf("IndexIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("index = %v, want empty", ids)
	}

	if err := r.DeleteExperience(ctx, exp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
