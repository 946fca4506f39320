package store

import (
	"fmt"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/ingest"
	"github.com/scan-io-git/scanio-hub/internal/review"
	"github.com/scan-io-git/scanio-hub/internal/task"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

// Backends groups the per-domain views of one storage backend.
type Backends struct {
	Tasks     task.Store
	Findings  ingest.FindingStore
	Baselines ingest.BaselineStore
	Fleet     fleet.Store
	Reviews   review.RecordStore

	closer func() error
}

// Close releases the underlying backend.
func (b *Backends) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Open opens the configured storage driver and returns its domain views.
func Open(cfg *config.Config) (*Backends, error) {
	switch cfg.Storage.Driver {
	case "memory":
		m := NewMemory()
		return &Backends{Tasks: m, Findings: m, Baselines: m, Fleet: m, Reviews: m}, nil
	case "sqlite", "":
		s, err := NewSQLite(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store at %q: %w", cfg.Storage.DSN, err)
		}
		return &Backends{Tasks: s, Findings: s, Baselines: s, Fleet: s, Reviews: s, closer: s.Close}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
