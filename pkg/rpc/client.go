package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Error is a failure reported by the remote handler.
type Error struct {
	Method  string
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Client holds one connection. Calls are serialised over it.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to an RPC server.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the response data into
// result, which may be nil. The context deadline, if any, bounds the round
// trip.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	if err := c.encoder.Encode(Request{Method: method, ID: id, Params: raw}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("calling %s: %w", method, context.DeadlineExceeded)
		}
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, id)
	}
	if resp.Error != "" {
		return &Error{Method: method, Message: resp.Error, Code: resp.Code}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
