package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/rpc"
)

var vocabulary = []string{"bbb", "aaa", "ccc", "aa", "bb"}

type vocabStore map[string][]string

func (v vocabStore) Load(_ context.Context, name string) ([]string, error) {
	types, ok := v[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrVocabularyNotFound, http.StatusNotFound, "vocabulary %q", name)
	}
	return types, nil
}

type tracker struct {
	mu     sync.Mutex
	events []analytics.ResolveEvent
}

func (t *tracker) Track(e analytics.ResolveEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func newService(opts ...Option) *Service {
	return NewService(config.Default().Indexer, opts...)
}

func positions(resp *proto.IndexResponse) [][]int {
	out := make([][]int, len(resp.Results))
	for i, m := range resp.Results {
		out[i] = m.Positions
	}
	return out
}

func TestResolveInlineTypes(t *testing.T) {
	events := &tracker{}
	svc := newService(WithEvents(events))

	resp, err := svc.Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
		RequestID: "r1",
		Patterns:  []string{"a*", "*b", "*c*", "?b"},
		Types:     vocabulary,
	})
	require.NoError(t, err)

	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, 5, resp.Types)
	assert.False(t, resp.Cached)
	assert.Equal(t, [][]int{{2, 4}, {1, 5}, {}, {5}}, positions(resp))

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, analytics.EventResolve, e.Type)
	assert.Equal(t, SourceHTTP, e.Source)
	assert.Equal(t, 3, e.Matched)
	assert.Equal(t, []string{"*c*"}, e.ZeroMatch)
}

func TestResolveGlobDisabled(t *testing.T) {
	glob := false
	resp, err := newService().Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
		Patterns: []string{"a*", "aa"},
		Types:    vocabulary,
		Glob:     &glob,
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{}, {4}}, positions(resp))
}

func TestResolveNamedVocabulary(t *testing.T) {
	svc := newService(WithVocabularies(vocabStore{"demo": vocabulary}))

	resp, err := svc.Resolve(context.Background(), SourceRPC, &proto.IndexRequest{
		Patterns:   []string{"b*"},
		Vocabulary: "demo",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 5}}, positions(resp))

	_, err = svc.Resolve(context.Background(), SourceRPC, &proto.IndexRequest{
		Patterns:   []string{"b*"},
		Vocabulary: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestResolveVocabularyWithoutStore(t *testing.T) {
	_, err := newService().Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
		Patterns:   []string{"a*"},
		Vocabulary: "demo",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestResolveRejectsInvalidRequests(t *testing.T) {
	events := &tracker{}
	svc := newService(WithEvents(events))

	for name, req := range map[string]*proto.IndexRequest{
		"types and vocabulary": {Patterns: []string{"a"}, Types: []string{"a"}, Vocabulary: "v"},
		"negative workers":     {Patterns: []string{"a"}, Workers: -5},
		"unknown form":         {Patterns: []string{"a"}, Normalize: "nfkd"},
	} {
		_, err := svc.Resolve(context.Background(), SourceHTTP, req)
		require.Error(t, err, name)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err), name)
	}
	require.Len(t, events.events, 3)
	assert.Equal(t, analytics.EventResolveError, events.events[0].Type)
}

func TestResolveUsesCache(t *testing.T) {
	c := cache.New(&memStore{data: map[string][]byte{}}, time.Minute, nil)
	events := &tracker{}
	svc := newService(WithCache(c), WithEvents(events))
	req := &proto.IndexRequest{Patterns: []string{"a*"}, Types: vocabulary}

	first, err := svc.Resolve(context.Background(), SourceHTTP, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Resolve(context.Background(), SourceHTTP, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, positions(first), positions(second))
	assert.True(t, events.events[1].CacheHit)

	// An explicit glob=true matches the server default and shares the entry.
	glob := true
	third, err := svc.Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
		Patterns: []string{"a*"}, Types: vocabulary, Glob: &glob,
	})
	require.NoError(t, err)
	assert.True(t, third.Cached)

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestResolveNormalizationSpellingsShareCache(t *testing.T) {
	c := cache.New(&memStore{data: map[string][]byte{}}, time.Minute, nil)
	svc := newService(WithCache(c))

	for i, form := range []string{"nfc", "NFC", " Nfc "} {
		resp, err := svc.Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
			Patterns: []string{"a*"}, Types: vocabulary, Normalize: form,
		})
		require.NoError(t, err, form)
		assert.Equal(t, i > 0, resp.Cached, form)
	}

	// The server default "none" and an explicit "NONE" are the same request.
	for i, form := range []string{"", "NONE"} {
		resp, err := svc.Resolve(context.Background(), SourceHTTP, &proto.IndexRequest{
			Patterns: []string{"a*"}, Types: vocabulary, Normalize: form,
		})
		require.NoError(t, err, form)
		assert.Equal(t, i > 0, resp.Cached, form)
	}
}

func TestResolveWorkersCappedAtServerDefault(t *testing.T) {
	cfg := config.Default().Indexer
	cfg.Workers = 2
	svc := NewService(cfg)

	r, err := svc.resolver(&proto.IndexRequest{Workers: 64}, SourceHTTP)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, svc.maxWorkers)
}

func TestRegisterRPC(t *testing.T) {
	server := rpc.NewServer()
	RegisterRPC(server, newService())
	assert.Equal(t, 2, server.MethodCount())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.ServeListener(ln)
	t.Cleanup(server.Stop)

	client, err := rpc.Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp proto.IndexResponse
	require.NoError(t, client.Call(ctx, proto.MethodResolve, &proto.IndexRequest{
		Patterns: []string{"*b"},
		Types:    vocabulary,
	}, &resp))
	assert.Equal(t, [][]int{{1, 5}}, positions(&resp))

	var health proto.HealthCheckResponse
	require.NoError(t, client.Call(ctx, proto.MethodHealth, nil, &health))
	assert.Equal(t, "SERVING", health.Status)

	err = client.Call(ctx, proto.MethodResolve, json.RawMessage(`{"patterns":["a"],"types":["a"],"vocabulary":"v"}`), &resp)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Code)
}
