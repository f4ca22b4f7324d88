package vocab

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/resilience"
)

// Schema creates the vocabulary table. Positions are 0-based and dense.
// Types are BYTEA because they need not be valid UTF-8.
const Schema = `CREATE TABLE IF NOT EXISTS vocabulary_types (
    vocabulary TEXT    NOT NULL,
    position   INTEGER NOT NULL,
    type       BYTEA   NOT NULL,
    PRIMARY KEY (vocabulary, position)
)`

// Store keeps named vocabularies in PostgreSQL.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// NewStore creates a Store on db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond},
		logger: slog.Default().With("component", "vocab-store"),
	}
}

// Migrate creates the vocabulary table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema)
}

// Load returns the types of vocabulary name ordered by position. A
// vocabulary with no rows yields ErrVocabularyNotFound.
func (s *Store) Load(ctx context.Context, name string) ([]string, error) {
	var types []string
	err := resilience.Retry(ctx, "vocab-load", s.retry, func() error {
		var err error
		types, err = s.load(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, apperrors.Newf(apperrors.ErrVocabularyNotFound, http.StatusNotFound,
			"vocabulary %q not found", name)
	}
	s.logger.Debug("vocabulary loaded", "vocabulary", name, "types", len(types))
	return types, nil
}

func (s *Store) load(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT type FROM vocabulary_types WHERE vocabulary = $1 ORDER BY position`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("querying vocabulary %q: %w", name, err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t []byte
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning vocabulary row: %w", err)
		}
		types = append(types, string(t))
	}
	return types, rows.Err()
}

// Save replaces vocabulary name with types in a single transaction.
func (s *Store) Save(ctx context.Context, name string, types []string) error {
	if name == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "vocabulary name is required")
	}
	start := time.Now()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vocabulary_types WHERE vocabulary = $1`, name,
		); err != nil {
			return fmt.Errorf("clearing vocabulary %q: %w", name, err)
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("vocabulary_types", "vocabulary", "position", "type"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for i, t := range types {
			if _, err := stmt.ExecContext(ctx, name, i, []byte(t)); err != nil {
				stmt.Close()
				return fmt.Errorf("copying type %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing copy: %w", err)
		}
		return stmt.Close()
	})
	if err != nil {
		return err
	}
	s.logger.Info("vocabulary saved",
		"vocabulary", name,
		"types", len(types),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Names lists stored vocabularies with their sizes.
func (s *Store) Names(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT vocabulary, COUNT(*) FROM vocabulary_types GROUP BY vocabulary`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vocabularies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning vocabulary count: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}
