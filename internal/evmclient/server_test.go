package evmclient

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// handlerFunc returns a result or an error for one JSON-RPC request.
type handlerFunc func(req rpcRequest) (any, *rpcError)

// fakeNode is a minimal JSON-RPC endpoint routing by method name.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{handlers: map[string]handlerFunc{}, calls: map[string]int{}}
}

func (n *fakeNode) on(method string, h handlerFunc) { n.handlers[method] = h }

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	h := n.handlers[req.Method]
	n.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if h == nil {
		resp.Error = &rpcError{Code: -32601, Message: "method not found: " + req.Method}
	} else {
		resp.Result, resp.Error = h(req)
		if resp.Result == nil && resp.Error == nil {
			resp.Result = json.RawMessage("null")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// dialFake starts node and returns a Client with fast polling and one retry.
func dialFake(t *testing.T, node *fakeNode, mut ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	cfg := Config{
		RPCURL:         srv.URL,
		ChainID:        big.NewInt(1337),
		Retries:        2,
		Timeout:        5 * time.Second,
		ConfirmTimeout: 2 * time.Second,
		ConfirmPoll:    10 * time.Millisecond,
		Log:            zaptest.NewLogger(t),
	}
	for _, m := range mut {
		m(&cfg)
	}
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
