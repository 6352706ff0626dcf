package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, q: db, acquireTimeout: time.Second}, mock
}

func TestGetVaultNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM vaults WHERE vault_pda = \$1`).
		WithArgs("vault-1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.GetVault(context.Background(), "vault-1")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestUpsertVaultExecutesOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO vaults`).WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := store.UpsertVault(context.Background(), Vault{
		VaultPDA: "vault-1", OwnerPubkey: "owner-1", Mint: "mint-1",
		CreatedAt: now, LastSyncedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplyDepositSetsBalanceAndRestoresDepositedInvariant(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE vaults SET[\s\S]*total_deposited\s*=\s*\$2 \+ total_withdrawn`).
		WithArgs("vault-1", int64(1500), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.ApplyDeposit(context.Background(), "vault-1", 1500, time.Now().Unix())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransferCommitsBothSides(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE vaults SET[\s\S]*total_balance\s*=\s*total_balance - \$2`).
		WithArgs("from-vault", int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE vaults SET[\s\S]*total_balance\s*=\s*total_balance \+ \$2`).
		WithArgs("to-vault", int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplyTransfer(context.Background(), "from-vault", "to-vault", 50)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsProcessedFalseWhenNoRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT 1 FROM processed_events WHERE tx_signature = \$1`).
		WithArgs("sig-1").
		WillReturnRows(sqlmock.NewRows(nil))

	processed, err := store.IsProcessed(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Error("expected IsProcessed to be false")
	}
}

func TestMarkProcessedInsertsOnce(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO processed_events`).
		WithArgs("sig-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkProcessed(context.Background(), "sig-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsAllStepsTogether(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE vaults SET[\s\S]*total_withdrawn\s*=\s*total_withdrawn \+ \$2`).
		WithArgs("vault-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO processed_events`).
		WithArgs("sig-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx EventStore) error {
		if err := tx.ApplyWithdraw(context.Background(), "vault-1", 100); err != nil {
			return err
		}
		return tx.MarkProcessed(context.Background(), "sig-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackAllStepsOnPartialFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE vaults SET[\s\S]*total_withdrawn\s*=\s*total_withdrawn \+ \$2`).
		WithArgs("vault-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	withdrawErr := errors.New("connection reset mid-signature")
	err := store.WithTx(context.Background(), func(tx EventStore) error {
		if err := tx.ApplyWithdraw(context.Background(), "vault-1", 100); err != nil {
			return err
		}
		// Simulate a crash before MarkProcessed runs: the tx must not commit,
		// so the withdraw above is never visible and a retry can safely
		// re-apply it.
		return withdrawErr
	})
	assert.True(t, errors.Is(err, withdrawErr), "expected withdrawErr to propagate, got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet(), "MarkProcessed/commit must not run")
}
