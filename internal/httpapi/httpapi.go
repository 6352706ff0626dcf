// Package httpapi is the thin HTTP/WS façade in front of the ledger: it
// builds unsigned transactions for vault actions and serves read-only
// balance/transaction/TVL views, plus a websocket TVL push feed. Grounded
// on original_source/src/api.rs's AppState/router/handlers, ported from
// axum to go-chi/chi/v5 the way chi is used across the pack (e.g.
// orbas1-Synnergy/synnergy-network's HTTP servers), with the websocket
// upgrade handled by gorilla/websocket.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/logging"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/txbuilder"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

// Store is the subset of ledger.Store the API reads and writes through.
type Store interface {
	GetVault(ctx context.Context, vaultPDA string) (ledger.Vault, error)
	GetTransactionsByUser(ctx context.Context, userPubkey string) ([]ledger.Transaction, error)
	GetTVL(ctx context.Context) (int64, error)
}

// BlockhashReader is the subset of chainclient.Client needed to stamp an
// unsigned transaction with a recent blockhash.
type BlockhashReader interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// Server wires the HTTP/WS façade to the ledger, the instruction builder,
// and the chain client.
type Server struct {
	store   Store
	chain   BlockhashReader
	builder *txbuilder.Builder
	logger  *logging.ComponentLogger

	tvlPushInterval time.Duration
	upgrader        websocket.Upgrader
}

// New creates a Server.
func New(store Store, chain BlockhashReader, builder *txbuilder.Builder, logger *logging.ComponentLogger, tvlPushInterval time.Duration) *Server {
	if logger == nil {
		logger = logging.New("httpapi")
	}
	if tvlPushInterval <= 0 {
		tvlPushInterval = 5 * time.Second
	}
	return &Server{
		store:           store,
		chain:           chain,
		builder:         builder,
		logger:          logger,
		tvlPushInterval: tvlPushInterval,
		upgrader:        websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Router builds the chi router for every route in the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/vault/initialize", s.handleInitializeVault)
	r.Post("/vault/deposit", s.handleDeposit)
	r.Post("/vault/withdraw", s.handleWithdraw)
	r.Get("/vault/balance/{user}", s.handleGetBalance)
	r.Get("/vault/transactions/{user}", s.handleGetTransactions)
	r.Get("/vault/tvl", s.handleGetTVL)
	r.Get("/ws/vaults", s.handleWSVaults)

	return r
}

type initializeVaultRequest struct {
	UserPubkey string `json:"user_pubkey"`
	Mint       string `json:"mint"`
}

type depositRequest struct {
	UserPubkey string `json:"user_pubkey"`
	Mint       string `json:"mint"`
	Amount     uint64 `json:"amount"`
}

type withdrawRequest struct {
	UserPubkey string `json:"user_pubkey"`
	Mint       string `json:"mint"`
	Amount     uint64 `json:"amount"`
}

type buildTransactionResponse struct {
	Transaction string `json:"transaction"`
}

type balanceResponse struct {
	VaultPDA         string `json:"vault_pda"`
	TotalBalance     int64  `json:"total_balance"`
	AvailableBalance int64  `json:"available_balance"`
	LockedBalance    int64  `json:"locked_balance"`
}

type transactionSummary struct {
	TxSignature string `json:"tx_signature"`
	TxType      string `json:"tx_type"`
	Amount      int64  `json:"amount"`
	Slot        int64  `json:"slot"`
}

type transactionsResponse struct {
	Transactions []transactionSummary `json:"transactions"`
}

type tvlResponse struct {
	TVL int64 `json:"tvl"`
}

func (s *Server) handleInitializeVault(w http.ResponseWriter, r *http.Request) {
	var body initializeVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid request body", err))
		return
	}

	user, err := solpubkey.Parse(body.UserPubkey)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid user_pubkey", err))
		return
	}
	mint, err := solpubkey.Parse(body.Mint)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid mint", err))
		return
	}

	ix, err := s.builder.BuildInitializeVaultIx(user, mint)
	if err != nil {
		writeError(w, err)
		return
	}

	s.respondWithTransaction(w, r, ix)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid request body", err))
		return
	}

	user, err := solpubkey.Parse(body.UserPubkey)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid user_pubkey", err))
		return
	}
	mint, err := solpubkey.Parse(body.Mint)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid mint", err))
		return
	}

	ix, err := s.builder.BuildDepositIx(user, mint, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	s.respondWithTransaction(w, r, ix)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid request body", err))
		return
	}

	user, err := solpubkey.Parse(body.UserPubkey)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid user_pubkey", err))
		return
	}
	mint, err := solpubkey.Parse(body.Mint)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid mint", err))
		return
	}

	ix, err := s.builder.BuildWithdrawIx(user, mint, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	s.respondWithTransaction(w, r, ix)
}

// respondWithTransaction stamps ix with a recent blockhash and returns it
// base64-encoded as an unsigned transaction payload, matching
// api.rs's build_tx_response.
func (s *Server) respondWithTransaction(w http.ResponseWriter, r *http.Request, ix txbuilder.Instruction) {
	blockhash, err := s.chain.GetLatestBlockhash(r.Context())
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindTransientIO, "fetch recent blockhash", err))
		return
	}

	encoded := base64.StdEncoding.EncodeToString(txbuilder.EncodeUnsignedMessage(ix, blockhash))
	writeJSON(w, http.StatusOK, buildTransactionResponse{Transaction: encoded})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	userKey, err := solpubkey.Parse(user)
	if err != nil {
		writeError(w, vaulterrors.Wrap(vaulterrors.KindValidation, "invalid user pubkey", err))
		return
	}

	vaultPDA, _, err := s.builder.DeriveVaultPDA(userKey)
	if err != nil {
		writeError(w, err)
		return
	}

	vault, err := s.store.GetVault(r.Context(), vaultPDA.String())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		VaultPDA:         vault.VaultPDA,
		TotalBalance:     vault.TotalBalance,
		AvailableBalance: vault.AvailableBalance,
		LockedBalance:    vault.LockedBalance,
	})
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	txs, err := s.store.GetTransactionsByUser(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]transactionSummary, 0, len(txs))
	for _, t := range txs {
		summaries = append(summaries, transactionSummary{
			TxSignature: t.TxSignature,
			TxType:      string(t.TxType),
			Amount:      t.Amount,
			Slot:        t.Slot,
		})
	}

	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: summaries})
}

func (s *Server) handleGetTVL(w http.ResponseWriter, r *http.Request) {
	tvl, err := s.store.GetTVL(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tvlResponse{TVL: tvl})
}

// handleWSVaults upgrades to a websocket and pushes {"tvl": N} every
// tvlPushInterval until the client disconnects, matching api.rs's
// handle_ws loop.
func (s *Server) handleWSVaults(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.tvlPushInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		tvl, err := s.store.GetTVL(ctx)
		if err == nil {
			msg, marshalErr := json.Marshal(tvlResponse{TVL: tvl})
			if marshalErr == nil {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError always responds 500 with the error message as the body,
// matching spec.md §6's blanket error contract (NotFound included —
// "vault not found" surfaces the same way as any other error).
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprint(w, err.Error())
}
