// Command indexer runs a single indexing pass: it polls the watched
// program for new signatures and mirrors decoded vault events into the
// ledger, then exits. It is the one-shot operator entrypoint for
// cron/backfill use (SPEC_FULL.md §6.2) — the continuous loop this same
// internal/indexer package drives runs embedded in cmd/server instead.
// Grounded on original_source/src/indexer/vault_indexer.rs's run_once
// (original_source/src/bin/indexer.rs only hosts a standalone event
// decoder, not a runnable loop), wired with the same cobra/signal-handling
// idiom as cmd/server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/withobsrvr/vault-backend/internal/chainclient"
	"github.com/withobsrvr/vault-backend/internal/config"
	"github.com/withobsrvr/vault-backend/internal/indexer"
	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/logging"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "indexer",
		Short: "mirror on-chain vault events into the ledger",
		RunE:  runIndexer,
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, args []string) error {
	logger := logging.New("indexer")

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

	programID, err := solpubkey.Parse(cfg.ProgramID)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindFatalConfig, "parse PROGRAM_ID", err)
	}

	chain := chainclient.New(cfg.RPCURL)
	ix := indexer.New(chain, store, programID, logger)

	logger.Info().Str("program_id", cfg.ProgramID).Msg("running one indexing pass")
	if err := ix.RunOnce(ctx); err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "indexing pass", err)
	}
	logger.Info().Msg("indexing pass complete")
	return nil
}
