package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
)

// SnapshotSchema creates the table SnapshotStore writes to.
const SnapshotSchema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// SnapshotStore periodically persists aggregator stats to PostgreSQL so the
// numbers survive restarts of the worker.
type SnapshotStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewSnapshotStore(db *postgres.Client) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: slog.Default().With("component", "analytics-snapshots"),
	}
}

// Migrate creates the snapshot table if it does not exist.
func (s *SnapshotStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, SnapshotSchema)
}

// Save writes one snapshot.
func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_resolves", stats.TotalResolves)
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *SnapshotStore) Latest(ctx context.Context) (*AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// Run saves agg's stats every interval until ctx is done, then saves once
// more with a fresh deadline.
func (s *SnapshotStore) Run(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshots started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(final, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
