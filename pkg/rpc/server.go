// Package rpc is a small JSON-over-TCP RPC layer for service-to-service
// calls: newline-delimited JSON requests and responses over a persistent
// connection, with "Service.Method" dispatch.
//
//	s := rpc.NewServer()
//	s.Register("TypeIndex.Resolve", func(ctx context.Context, params json.RawMessage) (any, error) {
//	    var req proto.IndexRequest
//	    if err := json.Unmarshal(params, &req); err != nil {
//	        return nil, err
//	    }
//	    return svc.Resolve(ctx, "rpc", &req)
//	})
//	go s.Serve(":9000")
//
//	c, _ := rpc.Dial("localhost:9000")
//	var resp proto.IndexResponse
//	err := c.Call(ctx, "TypeIndex.Resolve", &proto.IndexRequest{...}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
)

// HandlerFunc processes the params of one call.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code carries the HTTP
// status equivalent of Error.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  int             `json:"code,omitempty"`
}

// Server dispatches calls to registered handlers.
type Server struct {
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewServer creates a Server with no methods.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   slog.Default().With("component", "rpc-server"),
	}
}

// Register adds a handler for method, replacing any previous one.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Serve listens on addr and serves until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener serves connections accepted from ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = http.StatusNotFound
		return resp
	}

	ctx := logger.WithRequestID(s.ctx, req.ID)
	data, err := handler(ctx, req.Params)
	if err == nil {
		encoded, mErr := json.Marshal(data)
		if mErr == nil {
			resp.Data = encoded
			return resp
		}
		err = fmt.Errorf("encoding result: %w", mErr)
	}
	resp.Error = err.Error()
	resp.Code = apperrors.HTTPStatusCode(err)
	return resp
}

// Stop closes the listener and open connections, cancels in-flight handler
// contexts, and waits for connection goroutines to exit.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
