// Package chainclient is a minimal Solana JSON-RPC client covering the
// handful of methods the indexer, reconciliation worker, and CPI broker
// need: getSignaturesForAddress, getTransaction, getLatestBlockhash, and
// getTokenAccountBalance. Grounded on the call shapes
// original_source/src/indexer/vault_indexer.rs and cpi_manager.rs make
// against solana_client::rpc_client::RpcClient; there is no JSON-RPC
// client in the retrieval pack to adapt (the pack's on-chain domain is
// Stellar, whose ingestion services talk gRPC/XDR, not JSON-RPC), so the
// transport itself follows plain net/http/encoding/json.
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a single Solana RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a Client against the given RPC endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response for %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode rpc result for %s: %w", method, err)
		}
	}
	return nil
}

// SignatureInfo is one entry of getSignaturesForAddress's result.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	Err       any    `json:"err"`
	BlockTime *int64 `json:"blockTime"`
}

// GetSignaturesForAddress returns recent confirmed signatures for
// programID, newest first, matching vault_indexer.rs's
// get_signatures_for_address call.
func (c *Client) GetSignaturesForAddress(ctx context.Context, programID string, limit int) ([]SignatureInfo, error) {
	params := []any{programID}
	if limit > 0 {
		params = append(params, map[string]any{"limit": limit})
	}

	var out []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransactionMeta is the subset of a confirmed transaction's metadata the
// codec and indexer need.
type TransactionMeta struct {
	LogMessages []string `json:"logMessages"`
}

// Transaction is the subset of getTransaction's result the indexer reads.
type Transaction struct {
	Slot      int64            `json:"slot"`
	BlockTime *int64           `json:"blockTime"`
	Meta      *TransactionMeta `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
}

// GetTransaction fetches a confirmed transaction by signature, matching
// vault_indexer.rs's get_transaction call (JsonParsed encoding).
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}

	var out Transaction
	if err := c.call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction assembly,
// matching cpi_manager.rs's get_latest_blockhash call.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var out struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &out); err != nil {
		return "", err
	}
	return out.Value.Blockhash, nil
}

// GetTokenAccountBalance fetches the raw token amount held by a token
// account, used by the reconciliation worker to read the authoritative
// on-chain balance.
func (c *Client) GetTokenAccountBalance(ctx context.Context, tokenAccount string) (uint64, error) {
	var out struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenAccountBalance", []any{tokenAccount}, &out); err != nil {
		return 0, err
	}

	var amount uint64
	if _, err := fmt.Sscan(out.Value.Amount, &amount); err != nil {
		return 0, fmt.Errorf("parse token account amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}
