// Package substrate provides JSON-RPC/WebSocket source and target
// clients for Substrate-based chains.
package substrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

const (
	defaultRPCTimeout = 10 * time.Second

	// Buffered subscription notifications per subscription. Slow
	// consumers drop notifications rather than stalling the read loop;
	// the proof stream is a hint, so drops are safe.
	subscriptionBuffer = 16
)

// Config describes one chain connection.
type Config struct {
	ChainName string `json:"chain-name" yaml:"chain-name"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Engine    string `json:"engine" yaml:"engine"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// GenesisHash, when set, is verified against the node on connect so
	// a misconfigured endpoint fails fast instead of relaying garbage.
	GenesisHash string `json:"genesis-hash,omitempty" yaml:"genesis-hash,omitempty"`

	// BestFinalizedMethod is the target-side RPC method exposing the
	// bridge pallet's best finalized source header.
	BestFinalizedMethod string `json:"best-finalized-method,omitempty" yaml:"best-finalized-method,omitempty"`

	// SubmitCallIndex is the two-byte call index of the bridge
	// pallet's submit-finality-proof dispatchable on this chain.
	SubmitCallIndex string `json:"submit-call-index,omitempty" yaml:"submit-call-index,omitempty"`
}

// Validate checks the config fields that every connection needs.
func (c Config) Validate() error {
	if c.ChainName == "" {
		return errors.New("chain-name must be set")
	}
	if c.Endpoint == "" {
		return errors.New("endpoint must be set")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("endpoint %q must be a ws:// or wss:// URL", c.Endpoint)
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
	}
	return nil
}

// submitCallIndex parses the configured call index, a hex pair such as
// "0x0701" for pallet 7 call 1.
func (c Config) submitCallIndex() ([2]byte, error) {
	raw, err := decodeHexBytes(c.SubmitCallIndex)
	if err != nil || len(raw) != 2 {
		return [2]byte{}, fmt.Errorf("chain %s: submit-call-index must be a two-byte hex value such as 0x0701, got %q",
			c.ChainName, c.SubmitCallIndex)
	}
	return [2]byte{raw[0], raw[1]}, nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout == "" {
		return defaultRPCTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return defaultRPCTimeout
	}
	return d
}

// RPCError is a JSON-RPC 2.0 error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *subParams      `json:"params,omitempty"`
}

// Client is a JSON-RPC 2.0 client over a single WebSocket connection,
// with request/response correlation and subscription dispatch. It is
// safe for concurrent use.
type Client struct {
	log *zap.Logger
	cfg Config

	timeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]chan rpcResponse
	subs    map[string]chan json.RawMessage
}

// NewClient validates the config and returns an unconnected client.
func NewClient(log *zap.Logger, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chain %q: %w", cfg.ChainName, err)
	}
	return &Client{
		log:     log.With(zap.String("chain_name", cfg.ChainName)),
		cfg:     cfg,
		timeout: cfg.timeout(),
		pending: make(map[uint64]chan rpcResponse),
		subs:    make(map[string]chan json.RawMessage),
	}, nil
}

// ChainName returns the configured chain name.
func (c *Client) ChainName() string {
	return c.cfg.ChainName
}

// Connect dials the node and starts the read loop. If a genesis hash
// is configured it is verified before the connection is considered
// usable.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %v: %w", c.cfg.Endpoint, err, finality.ErrConnection)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	if c.cfg.GenesisHash != "" {
		if err := c.verifyGenesis(ctx); err != nil {
			_ = c.Close()
			return err
		}
	}

	c.log.Debug("Connected", zap.String("endpoint", c.cfg.Endpoint))
	return nil
}

func (c *Client) verifyGenesis(ctx context.Context) error {
	var genesis string
	if err := c.call(ctx, "chain_getBlockHash", []interface{}{0}, &genesis); err != nil {
		return fmt.Errorf("querying genesis hash: %w", err)
	}
	if !strings.EqualFold(genesis, c.cfg.GenesisHash) {
		return fmt.Errorf("genesis hash mismatch for chain %s: node reports %s, config expects %s",
			c.cfg.ChainName, genesis, c.cfg.GenesisHash)
	}
	return nil
}

// Reconnect drops the current connection and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	return multierr.Append(c.Close(), c.Connect(ctx))
}

// Close tears down the connection and fails all pending calls and
// subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.failConn(conn)
	return err
}

// call performs a JSON-RPC request and unmarshals the result. A nil
// result discards the response body. Transport failures are wrapped in
// finality.ErrConnection; node-side errors are returned as *RPCError.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("chain %s not connected: %w", c.cfg.ChainName, finality.ErrConnection)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if params == nil {
		req.Params = []interface{}{}
	}
	err := conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.removePending(id)
		return fmt.Errorf("writing %s request: %v: %w", method, err, finality.ErrConnection)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-timer.C:
		c.removePending(id)
		return fmt.Errorf("%s timed out after %s: %w", method, c.timeout, finality.ErrConnection)
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("connection lost during %s: %w", method, finality.ErrConnection)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	}
}

// subscribe opens a node-side subscription and returns its id plus the
// raw notification channel. The channel closes when the connection
// drops.
func (c *Client) subscribe(ctx context.Context, method string, params []interface{}) (string, <-chan json.RawMessage, error) {
	var rawID json.RawMessage
	if err := c.call(ctx, method, params, &rawID); err != nil {
		return "", nil, err
	}
	subID := normalizeSubID(rawID)
	if subID == "" {
		return "", nil, fmt.Errorf("%s returned empty subscription id", method)
	}

	ch := make(chan json.RawMessage, subscriptionBuffer)
	c.mu.Lock()
	c.subs[subID] = ch
	c.mu.Unlock()
	return subID, ch, nil
}

// unsubscribe closes a node-side subscription.
func (c *Client) unsubscribe(ctx context.Context, method, subID string) error {
	c.mu.Lock()
	if ch, ok := c.subs[subID]; ok {
		delete(c.subs, subID)
		close(ch)
	}
	c.mu.Unlock()
	return c.call(ctx, method, []interface{}{subID}, nil)
}

func (c *Client) removePending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("Read loop terminated", zap.Error(err))
			c.failConn(conn)
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("Discarding unparseable message", zap.Error(err))
			continue
		}

		switch {
		case resp.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*resp.ID]
			if ok {
				delete(c.pending, *resp.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		case resp.Params != nil:
			subID := normalizeSubID(resp.Params.Subscription)
			// Send under the lock so an unsubscribe cannot close the
			// channel mid-send. The send never blocks.
			c.mu.Lock()
			if ch, ok := c.subs[subID]; ok {
				select {
				case ch <- resp.Params.Result:
				default:
					c.log.Warn("Subscription consumer too slow, dropping notification",
						zap.String("subscription", subID),
					)
				}
			}
			c.mu.Unlock()
		}
	}
}

// failConn clears connection state after a transport failure. Pending
// calls observe their channel closing; subscription consumers observe
// their channel closing and resubscribe after reconnect.
func (c *Client) failConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// normalizeSubID renders a subscription id, which nodes encode as
// either a JSON string or a number, into a map key.
func normalizeSubID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
