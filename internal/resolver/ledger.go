package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
)

// ledgerKey is the single cache fragment holding the online-edits ledger.
const ledgerKey = "Ledger:onlineEdits"

// Ledger records which permanent experiences have been modified while
// offline. Offline experiences never appear here: their identifier prefix
// already marks every byte of them unsynced. The ledger is what lets the
// unsynced-set derivation find a permanent parent whose only change is a
// new offline child.
type Ledger struct {
	store  cache.Store
	logger *slog.Logger
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store cache.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{store: store, logger: logger}
}

// ledgerRecord is the persisted shape: permanent experience id to the
// unix-nano instant of its most recent offline modification.
type ledgerRecord map[string]int64

func (l *Ledger) load(ctx context.Context) (ledgerRecord, error) {
	raw, err := l.store.ReadFragment(ctx, ledgerKey)
	if err != nil {
		return nil, err
	}

	if raw == nil {
		return ledgerRecord{}, nil
	}

	var rec ledgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("resolver: decoding ledger: %w", err)
	}

	return rec, nil
}

func (l *Ledger) save(ctx context.Context, rec ledgerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("resolver: encoding ledger: %w", err)
	}

	return l.store.WriteFragment(ctx, ledgerKey, raw)
}

// Mark records a permanent experience as modified at the given instant.
// Offline identifiers are rejected: marking one would double-count it in
// the unsynced set.
func (l *Ledger) Mark(ctx context.Context, id noteid.ID, at time.Time) error {
	if id.IsOffline() {
		return fmt.Errorf("resolver: ledger rejects offline id %s", id)
	}

	rec, err := l.load(ctx)
	if err != nil {
		return err
	}

	rec[id.String()] = at.UnixNano()

	return l.save(ctx, rec)
}

// Clear removes an experience from the ledger. Clearing an absent id is a
// no-op.
func (l *Ledger) Clear(ctx context.Context, id noteid.ID) error {
	rec, err := l.load(ctx)
	if err != nil {
		return err
	}

	if _, ok := rec[id.String()]; !ok {
		return nil
	}

	delete(rec, id.String())

	return l.save(ctx, rec)
}

// IDs returns every experience currently recorded, in unspecified order.
func (l *Ledger) IDs(ctx context.Context) ([]noteid.ID, error) {
	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]noteid.ID, 0, len(rec))
	for raw := range rec {
		ids = append(ids, noteid.New(raw))
	}

	return ids, nil
}
