package chain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcHandler answers a JSON-RPC method. Returning a non-nil *rpcError sends an
// error response instead of a result.
type rpcHandler func(params json.RawMessage) (any, *rpcError)

// fakeRPC is a minimal JSON-RPC 2.0 server for exercising the chain clients.
type fakeRPC struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
	server   *httptest.Server
}

func newFakeRPC(t *testing.T, handlers map[string]rpcHandler) *fakeRPC {
	t.Helper()

	f := &fakeRPC{
		handlers: handlers,
		calls:    make(map[string]int, len(handlers)),
	}

	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeRPC) URL() string {
	return f.server.URL
}

func (f *fakeRPC) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

func (f *fakeRPC) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	handler, ok := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}

	if !ok {
		resp["error"] = rpcError{Code: -32601, Message: "method not found: " + req.Method}
	} else if result, rpcErr := handler(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// static returns a handler that always answers with result.
func static(result any) rpcHandler {
	return func(json.RawMessage) (any, *rpcError) {
		return result, nil
	}
}

// failing returns a handler that always answers with an error.
func failing(message string) rpcHandler {
	return func(json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: message}
	}
}
