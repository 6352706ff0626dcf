// Command server is the long-running process described in spec.md §5: the
// HTTP/WS façade cohabits with the Indexer and Reconciliation Worker loops
// in one process ("two long-running tasks ... and short-lived request
// handlers"). Grounded on original_source/src/bin/server.rs (referenced by
// api.rs::run_server) for the façade's responsibility, with the
// graceful-shutdown http.Server pattern adapted from
// stellar-query-api/go/main.go and the single-command cobra wiring adapted
// from orbas1-Synnergy/synnergy-network/cmd/synnergy/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/withobsrvr/vault-backend/internal/chainclient"
	"github.com/withobsrvr/vault-backend/internal/config"
	"github.com/withobsrvr/vault-backend/internal/httpapi"
	"github.com/withobsrvr/vault-backend/internal/indexer"
	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/logging"
	"github.com/withobsrvr/vault-backend/internal/reconcile"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/txbuilder"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "serve the vault backend's HTTP/WS façade",
		RunE:  runServer,
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := logging.New("server")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("fatal configuration error")
		return err
	}

	bgCtx, stopBackground := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopBackground()

	store, err := ledger.Open(bgCtx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBAcquireTimeout)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindFatalConfig, "open ledger store", err)
	}
	defer store.Close()

	chain := chainclient.New(cfg.RPCURL)

	programID, err := solpubkey.Parse(cfg.ProgramID)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindFatalConfig, "parse PROGRAM_ID", err)
	}
	builder := txbuilder.New(programID)

	apiServer := httpapi.New(store, chain, builder, logger, cfg.TVLPushInterval)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	var bg sync.WaitGroup

	ix := indexer.New(chain, store, programID, logging.New("indexer"))
	bg.Add(1)
	go func() {
		defer bg.Done()
		logger.Info().Dur("poll_interval", cfg.IndexerPollInterval).Msg("starting indexer loop")
		ix.Loop(bgCtx, cfg.IndexerPollInterval)
		logger.Info().Msg("indexer loop stopped")
	}()

	reconciler := reconcile.New(chain, store, logging.New("reconcile"))
	bg.Add(1)
	go func() {
		defer bg.Done()
		logger.Info().Dur("interval", cfg.ReconcileInterval).Msg("starting reconciliation loop")
		reconciler.Loop(bgCtx, cfg.ReconcileInterval)
		logger.Info().Msg("reconciliation loop stopped")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	// Wait for both background loops to finish their current pass before the
	// deferred store.Close() runs, so a DB call in flight never races a
	// closed connection pool.
	bg.Wait()
	return nil
}
