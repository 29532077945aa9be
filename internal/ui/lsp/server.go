// Package lsp serves navigation queries to an editor over Content-Length
// framed JSON-RPC on stdio. Document notifications double as the live-edit
// producer of the index.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"phelnav/internal/shared/observability"
	"phelnav/internal/shared/util"
)

// HandlerFunc processes a JSON-RPC request and returns a result or error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NotifyFunc processes a JSON-RPC notification (no response expected).
type NotifyFunc func(ctx context.Context, params json.RawMessage)

// maxContentLength bounds one message body.
const maxContentLength = 32 << 20

var (
	// errExit ends Serve after the exit notification.
	errExit = errors.New("exit requested")

	// Framing stays intact after these, so the loop answers and continues.
	errMalformed = errors.New("malformed message body")
	errTooLarge  = errors.New("message body too large")
)

type Server struct {
	reader   *bufio.Reader
	writer   io.Writer
	handlers map[string]HandlerFunc
	notifs   map[string]NotifyFunc
	limiter  *util.Limiter
	outMu    sync.Mutex
}

func NewServer(in io.Reader, out io.Writer) *Server {
	return &Server{
		reader:   bufio.NewReader(in),
		writer:   out,
		handlers: make(map[string]HandlerFunc),
		notifs:   make(map[string]NotifyFunc),
	}
}

// SetLimiter throttles requests. Notifications are never dropped since they
// carry document state.
func (s *Server) SetLimiter(l *util.Limiter) {
	s.limiter = l
}

func (s *Server) Handle(method string, fn HandlerFunc) {
	s.handlers[method] = fn
}

func (s *Server) OnNotify(method string, fn NotifyFunc) {
	s.notifs[method] = fn
}

// Serve reads messages until EOF, the exit notification or cancellation.
func (s *Server) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.ServeOnce(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ServeOnce reads and handles a single message.
func (s *Server) ServeOnce(ctx context.Context) error {
	msg, err := readMessage(s.reader)
	switch {
	case errors.Is(err, errMalformed):
		slog.Warn("dropping malformed message", "error", err)
		observability.RPCRequestsTotal.WithLabelValues("unknown").Inc()
		return s.sendError(nullID, codeParseError, err.Error())
	case errors.Is(err, errTooLarge):
		slog.Warn("dropping oversized message", "error", err)
		observability.RPCRequestsTotal.WithLabelValues("unknown").Inc()
		return s.sendError(nullID, codeInvalidRequest, err.Error())
	case err != nil:
		return err
	}
	observability.RPCRequestsTotal.WithLabelValues(s.metricLabel(msg.Method)).Inc()

	isNotification := len(msg.ID) == 0 || string(msg.ID) == "null"
	if isNotification {
		if msg.Method == "exit" {
			return errExit
		}
		if fn, ok := s.notifs[msg.Method]; ok {
			fn(ctx, msg.Params)
		}
		return nil
	}

	if s.limiter != nil && !s.limiter.Allow(1) {
		return s.sendError(msg.ID, codeRateLimited, "Rate limit exceeded")
	}

	fn, ok := s.handlers[msg.Method]
	if !ok {
		return s.sendError(msg.ID, codeMethodNotFound, "method not found: "+msg.Method)
	}

	result, handlerErr := fn(ctx, msg.Params)
	if handlerErr != nil {
		if errors.Is(handlerErr, context.Canceled) {
			return handlerErr
		}
		var rpcErr *rpcError
		if errors.As(handlerErr, &rpcErr) {
			return s.sendError(msg.ID, rpcErr.Code, rpcErr.Message)
		}
		slog.Warn("request failed", "method", msg.Method, "error", handlerErr)
		return s.sendError(msg.ID, codeInternalError, handlerErr.Error())
	}
	return s.sendResult(msg.ID, result)
}

// metricLabel keeps unknown client methods out of the label set.
func (s *Server) metricLabel(method string) string {
	if _, ok := s.handlers[method]; ok {
		return method
	}
	if _, ok := s.notifs[method]; ok || method == "exit" {
		return method
	}
	return "unknown"
}

func (s *Server) sendResult(id json.RawMessage, result any) error {
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return writeMessage(s.writer, resp)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return writeMessage(s.writer, resp)
}

// Notify sends a server-initiated notification.
func (s *Server) Notify(method string, params any) error {
	msg := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: params}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return writeMessage(s.writer, msg)
}

// readMessage reads a Content-Length framed JSON-RPC message.
func readMessage(r io.Reader) (rpcMessage, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	var contentLen int
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return rpcMessage{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			val := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLen, _ = strconv.Atoi(val)
		}
	}
	if contentLen <= 0 {
		return rpcMessage{}, fmt.Errorf("missing Content-Length")
	}
	if contentLen > maxContentLength {
		if _, err := io.CopyN(io.Discard, br, int64(contentLen)); err != nil {
			return rpcMessage{}, err
		}
		return rpcMessage{}, fmt.Errorf("%w: %d bytes", errTooLarge, contentLen)
	}
	body := make([]byte, contentLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return rpcMessage{}, err
	}
	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return rpcMessage{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return msg, nil
}

// writeMessage writes a Content-Length framed JSON-RPC message.
func writeMessage(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
