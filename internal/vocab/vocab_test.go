package vocab

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
)

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("bbb\naaa\r\n\nccc\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb", "aaa", "", "ccc"}, lines)
}

func TestReadLinesNoTrailingNewline(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("跩购鹇\n跩"))
	require.NoError(t, err)
	assert.Equal(t, []string{"跩购鹇", "跩"}, lines)
}

func TestReadLinesEmpty(t *testing.T) {
	lines, err := ReadLines(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadLinesTooLong(t *testing.T) {
	_, err := ReadLines(strings.NewReader(strings.Repeat("x", maxLine+1)))
	require.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	lines, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

// The store tests need a database; set TI_POSTGRES_ENABLED=true and the
// TI_POSTGRES_* connection variables to run them.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	if !cfg.Postgres.Enabled {
		t.Skip("postgres not enabled")
	}
	db, err := postgres.New(cfg.Postgres)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStoreSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())

	require.NoError(t, s.Save(ctx, name, []string{"bbb", "aaa", "", "aa"}))
	types, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb", "aaa", "", "aa"}, types)

	require.NoError(t, s.Save(ctx, name, []string{"x"}))
	types, err = s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, types)

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, names[name])
}

func TestStoreKeepsInvalidUTF8(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("test-raw-%d", time.Now().UnixNano())

	types := []string{"a\xff", "\xffz", ""}
	require.NoError(t, s.Save(ctx, name, types))
	got, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, types, got)
}

func TestStoreLoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestStoreSaveRequiresName(t *testing.T) {
	s := &Store{}
	err := s.Save(context.Background(), "", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
