package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// JSON-RPC error codes the Lean server uses to signal that elaboration has
// not caught up with the request yet.
const (
	codeServerNotInitialized = -32002
	codeContentModified      = -32801
)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Client speaks JSON-RPC 2.0 over a server's stdio pipes. Requests are
// strictly sequential: the elaboration state behind the wire must not be
// queried concurrently, so callers (the session) serialize all use. A
// background pump reads frames and routes responses; notifications from the
// server are logged and dropped.
type Client struct {
	writeMu sync.Mutex
	stdin   io.WriteCloser

	nextID int64
	resp   chan *rpcMessage

	done    chan struct{}
	readErr error // set before done closes

	closeOnce sync.Once
	quit      chan struct{} // closed by Close; unblocks a pump nobody is receiving from

	logger *zap.Logger
}

// NewClient starts a client over the given pipes and begins pumping
// incoming messages.
func NewClient(stdin io.WriteCloser, stdout io.Reader, logger *zap.Logger) *Client {
	c := &Client{
		stdin:  stdin,
		nextID: 1,
		resp:   make(chan *rpcMessage, 8),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		logger: logger,
	}
	go c.pump(bufio.NewReader(stdout))
	return c
}

// pump reads frames until the server closes its stdout or a frame is
// malformed, routing responses to the in-flight request.
func (c *Client) pump(r *bufio.Reader) {
	defer close(c.done)
	for {
		body, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				c.readErr = err
			} else {
				c.readErr = io.EOF
			}
			return
		}
		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			c.readErr = fmt.Errorf("%w: decode message: %v", ErrProtocol, err)
			return
		}
		switch {
		case msg.ID != nil && msg.Method == "":
			// Response to our request. With no request in flight the buffer
			// can fill with stale responses; quit keeps the pump stoppable.
			select {
			case c.resp <- &msg:
			case <-c.quit:
				return
			}
		case msg.Method != "":
			// Server notification or server-to-client request. The session
			// never registers handlers for these; diagnostics chatter is
			// expected and ignored.
			c.logger.Debug("ignoring server message", zap.String("method", msg.Method))
		default:
			c.readErr = fmt.Errorf("%w: message with neither id nor method", ErrProtocol)
			return
		}
	}
}

// Done is closed when the read pump exits (server closed stdout, process
// died, or a protocol error occurred).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the pump exited; io.EOF for a clean close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.stdin, rpcMessage{JSONRPC: "2.0", Method: method, Params: marshalParams(params)})
}

// Request sends a request and waits for its response, the context deadline,
// or server exit, whichever comes first. Server errors signalling "not
// caught up yet" map to ErrNotReady; other server errors map to ErrProtocol.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.writeMu.Lock()
	id := c.nextID
	c.nextID++
	err := writeFrame(c.stdin, rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: marshalParams(params)})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	for {
		var msg *rpcMessage
		select {
		case msg = <-c.resp:
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", method, ErrRequestTimeout)
		case <-c.done:
			// The response may have been delivered just before the server
			// exited; drain it before reporting the exit.
			select {
			case msg = <-c.resp:
			default:
				return nil, fmt.Errorf("%s: server exited: %w", method, c.readErr)
			}
		}
		if msg.ID == nil || *msg.ID != id {
			// Requests are sequential; a stray id means a stale response
			// from before a timeout. Drop it and keep waiting.
			c.logger.Debug("dropping stale response", zap.Int64p("id", msg.ID))
			continue
		}
		if msg.Error != nil {
			if msg.Error.Code == codeServerNotInitialized || msg.Error.Code == codeContentModified {
				return nil, fmt.Errorf("%s: %w: %s", method, ErrNotReady, msg.Error.Message)
			}
			return nil, fmt.Errorf("%s: %w: %s", method, ErrProtocol, msg.Error.Message)
		}
		return msg.Result, nil
	}
}

// Close signals the pump to stop and closes the write side. Safe to call
// more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.stdin.Close()
}

func marshalParams(params any) json.RawMessage {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		// Params are always our own structs; a marshal failure is a bug.
		panic(fmt.Sprintf("lsp: unmarshalable params: %v", err))
	}
	return data
}
