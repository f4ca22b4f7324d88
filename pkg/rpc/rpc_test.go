package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
)

type echoArgs struct {
	Text string `json:"text"`
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Say", func(ctx context.Context, params json.RawMessage) (any, error) {
		var args echoArgs
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, err
		}
		return map[string]string{"text": args.Text, "id": logger.RequestID(ctx)}, nil
	})
	s.Register("Echo.Fail", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "nope")
	})
	s.Register("Echo.Slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return s, ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	s, addr := startServer(t)
	assert.Equal(t, 3, s.MethodCount())

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	var out map[string]string
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoArgs{Text: "hi"}, &out))
	assert.Equal(t, "hi", out["text"])
	assert.Equal(t, "1", out["id"])

	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoArgs{Text: "again"}, &out))
	assert.Equal(t, "again", out["text"])
	assert.Equal(t, "2", out["id"])
}

func TestCallErrors(t *testing.T) {
	_, addr := startServer(t)
	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(context.Background(), "Echo.Fail", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "nope")

	err = c.Call(context.Background(), "Echo.Missing", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusNotFound, rpcErr.Code)
}

func TestCallDeadline(t *testing.T) {
	_, addr := startServer(t)
	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Call(ctx, "Echo.Slow", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopClosesConnections(t *testing.T) {
	s, addr := startServer(t)
	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoArgs{}, nil))

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
