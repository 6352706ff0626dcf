// Command reconcile runs a single reconciliation pass: it compares each
// vault's mirrored balance against its on-chain token account, records any
// discrepancy found, and exits. It is the one-shot operator entrypoint for
// cron/manual runs (DESIGN.md's Domain packages table) — the continuous
// loop this same internal/reconcile package drives runs embedded in
// cmd/server instead. Grounded on
// original_source/src/reconciliation/worker.rs's run_once; the original
// has no dedicated binary entrypoint of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/withobsrvr/vault-backend/internal/chainclient"
	"github.com/withobsrvr/vault-backend/internal/config"
	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/logging"
	"github.com/withobsrvr/vault-backend/internal/reconcile"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "detect divergence between mirrored and on-chain vault balances",
		RunE:  runReconcile,
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	logger := logging.New("reconcile")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("fatal configuration error")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBAcquireTimeout)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindFatalConfig, "open ledger store", err)
	}
	defer store.Close()

	chain := chainclient.New(cfg.RPCURL)
	worker := reconcile.New(chain, store, logger)

	logger.Info().Msg("running one reconciliation pass")
	if err := worker.RunOnce(ctx); err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "reconciliation pass", err)
	}
	logger.Info().Msg("reconciliation pass complete")
	return nil
}
