package chainclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetSignaturesForAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getSignaturesForAddress" {
			t.Errorf("unexpected method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[{"signature":"sig1","slot":100,"err":null,"blockTime":1700000000}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	sigs, err := c.GetSignaturesForAddress(context.Background(), "Prog111", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Signature != "sig1" {
		t.Errorf("unexpected signatures: %+v", sigs)
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"node is behind"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetLatestBlockhash(context.Background())
	if err == nil {
		t.Fatal("expected error from rpc error response")
	}
}

func TestGetTokenAccountBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"amount":"42000"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	amount, err := c.GetTokenAccountBalance(context.Background(), "TokenAcct111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 42000 {
		t.Errorf("amount = %d, want 42000", amount)
	}
}
