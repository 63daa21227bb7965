package history

import (
	"context"
	"time"
)

// Adapter bridges Store to the core HistoryStore port and tolerates a nil store,
// which is how a disabled ledger is represented.
type Adapter struct {
	store *Store
}

func NewAdapter(store *Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) SaveRun(ctx context.Context, run Run) error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.SaveRun(ctx, run)
}

func (a *Adapter) LoadRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	if a == nil || a.store == nil {
		return nil, nil
	}
	return a.store.LoadRuns(ctx, since, limit)
}
