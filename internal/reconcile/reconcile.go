// Package reconcile implements the Reconciliation Worker: for every
// mirrored vault, compare the on-chain token-account balance against the
// stored total_balance and record (never correct) any divergence.
// Grounded on original_source/src/db/reconciliation_repo.rs's row shape
// and spec.md §4.4's pass semantics.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/logging"
)

// ChainBalanceReader reads the authoritative on-chain balance for a vault's
// token account.
type ChainBalanceReader interface {
	GetTokenAccountBalance(ctx context.Context, tokenAccount string) (uint64, error)
}

// Store is the subset of ledger.Store the worker needs.
type Store interface {
	GetAllVaults(ctx context.Context) ([]ledger.Vault, error)
	InsertReconciliationEntry(ctx context.Context, e ledger.ReconciliationEntry) error
}

// Worker runs reconciliation passes.
type Worker struct {
	chain  ChainBalanceReader
	store  Store
	logger *logging.ComponentLogger
}

// New creates a Worker.
func New(chain ChainBalanceReader, store Store, logger *logging.ComponentLogger) *Worker {
	if logger == nil {
		logger = logging.New("reconcile")
	}
	return &Worker{chain: chain, store: store, logger: logger}
}

// RunOnce compares every vault's mirrored total_balance against its
// on-chain token account amount and records any discrepancy found. It
// never mutates the ledger — it is a detector, not a corrector, per
// spec.md §4.4.
func (w *Worker) RunOnce(ctx context.Context) error {
	vaults, err := w.store.GetAllVaults(ctx)
	if err != nil {
		return err
	}

	for _, v := range vaults {
		if v.VaultTokenAccount == "" {
			continue
		}

		onchain, err := w.chain.GetTokenAccountBalance(ctx, v.VaultTokenAccount)
		if err != nil {
			w.logger.Error().Str("vault", v.VaultPDA).Err(err).Msg("failed to fetch on-chain balance, skipping vault")
			continue
		}

		offchain := v.TotalBalance
		onchainSigned := int64(onchain)

		if onchainSigned == offchain {
			continue
		}

		entry := ledger.ReconciliationEntry{
			ID:              uuid.NewString(),
			VaultPDA:        v.VaultPDA,
			ProgramID:       v.ProgramID,
			Network:         v.Network,
			OnchainBalance:  onchainSigned,
			OffchainBalance: offchain,
			Discrepancy:     offchain - onchainSigned,
			DetectedAt:      time.Now().UTC(),
			Resolved:        false,
		}

		if err := w.store.InsertReconciliationEntry(ctx, entry); err != nil {
			w.logger.Error().Str("vault", v.VaultPDA).Err(err).Msg("failed to record reconciliation entry")
			continue
		}

		w.logger.Warn().Str("vault", v.VaultPDA).Int64("discrepancy", entry.Discrepancy).Msg("balance discrepancy detected")
	}

	return nil
}

// Loop runs RunOnce on interval until ctx is cancelled.
func (w *Worker) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error().Err(err).Msg("reconciliation pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
