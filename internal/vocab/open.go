package vocab

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
)

// Backend is a named-vocabulary store.
type Backend interface {
	Load(ctx context.Context, name string) ([]string, error)
	Save(ctx context.Context, name string, types []string) error
	Names(ctx context.Context) (map[string]int, error)
}

// Open picks the vocabulary backend: PostgreSQL when db is non-nil,
// otherwise the bbolt file at cfg.BoltPath. Both unset yields a nil Backend.
// The returned close func releases what Open opened; it never closes db.
func Open(ctx context.Context, cfg config.VocabConfig, db *postgres.Client) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch {
	case db != nil:
		s := NewStore(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case cfg.BoltPath != "":
		s, err := OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, nil
	}
}
