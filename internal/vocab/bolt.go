package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
)

var bucketVocabularies = []byte("vocabularies")

// BoltStore keeps named vocabularies in an embedded bbolt file, one JSON
// array of base64 byte strings per vocabulary so types that are not valid
// UTF-8 round-trip unchanged. It serves single-node deployments without
// PostgreSQL.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating vocabulary db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVocabularies)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vocabulary bucket: %w", err)
	}
	return &BoltStore{db: db, logger: slog.Default().With("component", "vocab-bolt")}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(_ context.Context, name string) ([]string, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket(bucketVocabularies).Get([]byte(name)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %q: %w", name, err)
	}
	if data == nil {
		return nil, apperrors.Newf(apperrors.ErrVocabularyNotFound, http.StatusNotFound,
			"vocabulary %q not found", name)
	}
	var raw [][]byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding vocabulary %q: %w", name, err)
	}
	types := make([]string, len(raw))
	for i, t := range raw {
		types[i] = string(t)
	}
	return types, nil
}

func (s *BoltStore) Save(_ context.Context, name string, types []string) error {
	if name == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "vocabulary name is required")
	}
	raw := make([][]byte, len(types))
	for i, t := range types {
		raw[i] = []byte(t)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding vocabulary %q: %w", name, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVocabularies).Put([]byte(name), data)
	})
	if err != nil {
		return fmt.Errorf("writing vocabulary %q: %w", name, err)
	}
	s.logger.Info("vocabulary saved", "vocabulary", name, "types", len(types))
	return nil
}

func (s *BoltStore) Names(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVocabularies).ForEach(func(k, v []byte) error {
			var types []json.RawMessage
			if err := json.Unmarshal(v, &types); err != nil {
				return fmt.Errorf("decoding vocabulary %q: %w", k, err)
			}
			out[string(k)] = len(types)
			return nil
		})
	})
	return out, err
}
