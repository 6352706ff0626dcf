package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/txbuilder"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

type fakeStore struct {
	vaults map[string]ledger.Vault
	txs    map[string][]ledger.Transaction
	tvl    int64
}

func (f *fakeStore) GetVault(ctx context.Context, vaultPDA string) (ledger.Vault, error) {
	v, ok := f.vaults[vaultPDA]
	if !ok {
		return ledger.Vault{}, vaulterrors.ErrVaultNotFound
	}
	return v, nil
}

func (f *fakeStore) GetTransactionsByUser(ctx context.Context, userPubkey string) ([]ledger.Transaction, error) {
	return f.txs[userPubkey], nil
}

func (f *fakeStore) GetTVL(ctx context.Context) (int64, error) {
	return f.tvl, nil
}

type fakeChain struct{}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context) (string, error) {
	return "11111111111111111111111111111111", nil
}

func fakeKey(fill byte) solpubkey.Key {
	var k solpubkey.Key
	for i := range k {
		k[i] = fill
	}
	return k
}

func newTestServer(store *fakeStore) *Server {
	programID := fakeKey(0x01)
	return New(store, &fakeChain{}, txbuilder.New(programID), nil, 0)
}

func TestHandleDepositReturnsBase64Transaction(t *testing.T) {
	user := fakeKey(0x02)
	mint := fakeKey(0x03)
	store := &fakeStore{vaults: map[string]ledger.Vault{}}
	srv := newTestServer(store)

	body, _ := json.Marshal(depositRequest{UserPubkey: user.String(), Mint: mint.String(), Amount: 100})
	req := httptest.NewRequest(http.MethodPost, "/vault/deposit", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp buildTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transaction == "" {
		t.Error("expected a non-empty transaction payload")
	}
}

func TestHandleDepositInvalidPubkeyReturns500(t *testing.T) {
	store := &fakeStore{vaults: map[string]ledger.Vault{}}
	srv := newTestServer(store)

	body, _ := json.Marshal(depositRequest{UserPubkey: "not-a-key", Mint: "also-not-a-key", Amount: 100})
	req := httptest.NewRequest(http.MethodPost, "/vault/deposit", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleGetBalanceMissingVaultReturns500WithMessage(t *testing.T) {
	store := &fakeStore{vaults: map[string]ledger.Vault{}}
	srv := newTestServer(store)

	user := fakeKey(0x04)
	req := httptest.NewRequest(http.MethodGet, "/vault/balance/"+user.String(), nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if rec.Body.String() != "vault not found" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "vault not found")
	}
}

func TestHandleGetBalanceReturnsVault(t *testing.T) {
	programID := fakeKey(0x01)
	user := fakeKey(0x05)
	builder := txbuilder.New(programID)
	vaultPDA, _, err := builder.DeriveVaultPDA(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := &fakeStore{vaults: map[string]ledger.Vault{
		vaultPDA.String(): {VaultPDA: vaultPDA.String(), TotalBalance: 1000, AvailableBalance: 800, LockedBalance: 200},
	}}
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/vault/balance/"+user.String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalBalance != 1000 || resp.AvailableBalance != 800 || resp.LockedBalance != 200 {
		t.Errorf("unexpected balance response: %+v", resp)
	}
}

func TestHandleGetTVL(t *testing.T) {
	store := &fakeStore{tvl: 42}
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/vault/tvl", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp tvlResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TVL != 42 {
		t.Errorf("TVL = %d, want 42", resp.TVL)
	}
}

func TestHandleGetTransactionsKeepsStoreSlotOrder(t *testing.T) {
	store := &fakeStore{txs: map[string][]ledger.Transaction{
		"user1": {
			{TxSignature: "sig2", TxType: ledger.TxWithdraw, Amount: 50, Slot: 20},
			{TxSignature: "sig1", TxType: ledger.TxDeposit, Amount: 100, Slot: 10},
		},
	}}
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/vault/transactions/user1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp transactionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(resp.Transactions))
	}
	if resp.Transactions[0].Slot != 20 {
		t.Errorf("expected caller-provided ordering to be preserved, got slot %d first", resp.Transactions[0].Slot)
	}
}
