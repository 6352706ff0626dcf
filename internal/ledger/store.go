package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

// dbtx is the subset of *sql.DB / *sql.Tx every query method runs against,
// so the same method bodies work whether or not they're inside a
// transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Ledger Store: a thin, context-aware wrapper over
// database/sql, grounded on original_source/src/db/vault_repo.rs's query
// shapes and postgres-consumer/go/main.go's pool-configuration idiom.
type Store struct {
	db             *sql.DB
	q              dbtx
	acquireTimeout time.Duration
}

// EventStore is the subset of Store the Indexer needs to apply one
// signature's effects, including the WithTx boundary that makes that
// application atomic. Declared here (rather than in internal/indexer) so
// *Store can implement it directly: WithTx hands its callback a Store
// bound to the open transaction, and that bound Store must itself satisfy
// EventStore.
type EventStore interface {
	IsProcessed(ctx context.Context, signature string) (bool, error)
	MarkProcessed(ctx context.Context, signature string) error
	InsertNewVault(ctx context.Context, vaultPDA, ownerPubkey, mint string, timestamp int64) error
	InsertTransaction(ctx context.Context, t Transaction) error
	ApplyDeposit(ctx context.Context, vaultPDA string, newBalance int64, timestamp int64) error
	ApplyWithdraw(ctx context.Context, vaultPDA string, amount int64) error
	ApplyLock(ctx context.Context, vaultPDA string, amount int64) error
	ApplyUnlock(ctx context.Context, vaultPDA string, amount int64) error
	ApplyTransfer(ctx context.Context, fromVault, toVault string, amount int64) error
	GetAllVaults(ctx context.Context) ([]Vault, error)
	SnapshotAllVaults(ctx context.Context, vaults []Vault, snapshotTime time.Time) error
	WithTx(ctx context.Context, fn func(tx EventStore) error) error
}

// WithTx runs fn inside one database transaction spanning every call fn
// makes through the tx argument it receives: if fn returns an error the
// transaction rolls back and none of its effects are visible, matching
// spec.md's "either all side effects ... commit atomically with the
// ProcessedEvent insert, or none do" per-signature contract. Mirrors the
// BeginTx/Commit/Rollback shape ApplyTransfer already uses for its own
// two-row update.
func (s *Store) WithTx(ctx context.Context, fn func(tx EventStore) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "begin event tx", err)
	}

	txStore := &Store{db: s.db, q: sqlTx, acquireTimeout: s.acquireTimeout}
	if err := fn(txStore); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "commit event tx", err)
	}
	return nil
}

// Open opens a Postgres connection pool, applies the pool-sizing knobs
// spec.md §5 specifies (max 10 open, 2 idle — database/sql has no native
// "min idle" the way sqlx's pool does, so MaxIdleConns approximates it, per
// SPEC_FULL.md §6.3), and creates the schema if it does not already exist.
func Open(ctx context.Context, connStr string, maxOpenConns, maxIdleConns int, acquireTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.KindFatalConfig, "open postgres connection", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, vaulterrors.Wrap(vaulterrors.KindTransientIO, "ping postgres", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, vaulterrors.Wrap(vaulterrors.KindFatalConfig, "initialize schema", err)
	}

	return &Store{db: db, q: db, acquireTimeout: acquireTimeout}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// UpsertVault inserts or fully replaces a vault's balance fields, mirroring
// vault_repo.rs's upsert_vault.
func (s *Store) UpsertVault(ctx context.Context, v Vault) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO vaults (
			vault_pda, program_id, network, owner_pubkey, mint,
			vault_token_account, total_balance, locked_balance,
			available_balance, total_deposited, total_withdrawn,
			created_at, last_synced_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (vault_pda) DO UPDATE SET
			total_balance     = EXCLUDED.total_balance,
			locked_balance    = EXCLUDED.locked_balance,
			available_balance = EXCLUDED.available_balance,
			total_deposited   = EXCLUDED.total_deposited,
			total_withdrawn   = EXCLUDED.total_withdrawn,
			last_synced_at    = EXCLUDED.last_synced_at
	`,
		v.VaultPDA, v.ProgramID, v.Network, v.OwnerPubkey, v.Mint,
		v.VaultTokenAccount, v.TotalBalance, v.LockedBalance,
		v.AvailableBalance, v.TotalDeposited, v.TotalWithdrawn,
		v.CreatedAt, v.LastSyncedAt,
	)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "upsert vault", err)
	}
	return nil
}

func scanVault(row interface{ Scan(...any) error }) (Vault, error) {
	var v Vault
	err := row.Scan(
		&v.VaultPDA, &v.ProgramID, &v.Network, &v.OwnerPubkey, &v.Mint,
		&v.VaultTokenAccount, &v.TotalBalance, &v.LockedBalance,
		&v.AvailableBalance, &v.TotalDeposited, &v.TotalWithdrawn,
		&v.CreatedAt, &v.LastSyncedAt,
	)
	return v, err
}

const vaultColumns = `vault_pda, program_id, network, owner_pubkey, mint,
	vault_token_account, total_balance, locked_balance, available_balance,
	total_deposited, total_withdrawn, created_at, last_synced_at`

// GetVault fetches a vault by its PDA. Returns vaulterrors.ErrVaultNotFound
// if no row matches.
func (s *Store) GetVault(ctx context.Context, vaultPDA string) (Vault, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.q.QueryRowContext(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE vault_pda = $1`, vaultPDA)
	v, err := scanVault(row)
	if err == sql.ErrNoRows {
		return Vault{}, vaulterrors.ErrVaultNotFound
	}
	if err != nil {
		return Vault{}, vaulterrors.Wrap(vaulterrors.KindTransientIO, "get vault", err)
	}
	return v, nil
}

// GetVaultByOwner fetches the vault owned by the given pubkey, if any.
func (s *Store) GetVaultByOwner(ctx context.Context, ownerPubkey string) (Vault, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.q.QueryRowContext(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE owner_pubkey = $1`, ownerPubkey)
	v, err := scanVault(row)
	if err == sql.ErrNoRows {
		return Vault{}, vaulterrors.ErrVaultNotFound
	}
	if err != nil {
		return Vault{}, vaulterrors.Wrap(vaulterrors.KindTransientIO, "get vault by owner", err)
	}
	return v, nil
}

// GetAllVaults returns every mirrored vault, oldest first.
func (s *Store) GetAllVaults(ctx context.Context) ([]Vault, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+vaultColumns+` FROM vaults ORDER BY created_at ASC`)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.KindTransientIO, "get all vaults", err)
	}
	defer rows.Close()

	var out []Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, vaulterrors.Wrap(vaulterrors.KindParse, "scan vault row", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetTVL sums total_balance across every vault.
func (s *Store) GetTVL(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var tvl int64
	err := s.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_balance), 0) FROM vaults`).Scan(&tvl)
	if err != nil {
		return 0, vaulterrors.Wrap(vaulterrors.KindTransientIO, "get tvl", err)
	}
	return tvl, nil
}

// InsertNewVault inserts a fresh vault row in response to a
// VaultInitialized event. Fields the event doesn't carry (program id,
// token account) default to empty, matching vault_repo.rs's
// insert_new_vault.
func (s *Store) InsertNewVault(ctx context.Context, vaultPDA, ownerPubkey, mint string, timestamp int64) error {
	createdAt := time.Unix(timestamp, 0).UTC()
	return s.UpsertVault(ctx, Vault{
		VaultPDA:     vaultPDA,
		Network:      "localnet",
		OwnerPubkey:  ownerPubkey,
		Mint:         mint,
		CreatedAt:    createdAt,
		LastSyncedAt: createdAt,
	})
}

// ApplyDeposit sets total_balance and available_balance to newBalance (the
// event's authoritative post-deposit amount, mirroring
// original_source/src/db/vault_repo.rs's set_balance_from_event) and
// advances total_deposited so total_deposited - total_withdrawn = total_balance
// continues to hold afterward. The Rust reference only does the former,
// which silently breaks that invariant on every deposit — see DESIGN.md
// Open Question #2 for why this Go implementation restores it instead.
func (s *Store) ApplyDeposit(ctx context.Context, vaultPDA string, newBalance int64, timestamp int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ts := time.Unix(timestamp, 0).UTC()
	_, err := s.q.ExecContext(ctx, `
		UPDATE vaults SET
			total_balance     = $2,
			available_balance = $2,
			total_deposited    = $2 + total_withdrawn,
			last_synced_at     = $3
		WHERE vault_pda = $1
	`, vaultPDA, newBalance, ts)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "apply deposit", err)
	}
	return nil
}

// ApplyWithdraw mirrors vault_repo.rs's apply_withdraw.
func (s *Store) ApplyWithdraw(ctx context.Context, vaultPDA string, amount int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		UPDATE vaults SET
			total_balance     = total_balance - $2,
			available_balance = available_balance - $2,
			total_withdrawn   = total_withdrawn + $2,
			last_synced_at    = now()
		WHERE vault_pda = $1
	`, vaultPDA, amount)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "apply withdraw", err)
	}
	return nil
}

// ApplyLock moves amount from available to locked, mirroring apply_lock.
func (s *Store) ApplyLock(ctx context.Context, vaultPDA string, amount int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		UPDATE vaults SET
			available_balance = available_balance - $2,
			locked_balance    = locked_balance + $2,
			last_synced_at    = now()
		WHERE vault_pda = $1
	`, vaultPDA, amount)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "apply lock", err)
	}
	return nil
}

// ApplyUnlock moves amount from locked to available, mirroring apply_unlock.
func (s *Store) ApplyUnlock(ctx context.Context, vaultPDA string, amount int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		UPDATE vaults SET
			available_balance = available_balance + $2,
			locked_balance    = locked_balance - $2,
			last_synced_at    = now()
		WHERE vault_pda = $1
	`, vaultPDA, amount)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "apply unlock", err)
	}
	return nil
}

// ApplyTransfer debits fromVault and credits toVault atomically, mirroring
// apply_transfer's use of a single sqlx transaction. Inside WithTx both
// updates run in the enclosing transaction; otherwise ApplyTransfer opens
// and commits its own.
func (s *Store) ApplyTransfer(ctx context.Context, fromVault, toVault string, amount int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var tx dbtx = s.q
	var commit func() error
	if _, inTx := s.q.(*sql.Tx); !inTx {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return vaulterrors.Wrap(vaulterrors.KindTransientIO, "begin transfer tx", err)
		}
		defer sqlTx.Rollback()
		tx, commit = sqlTx, sqlTx.Commit
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vaults SET
			total_balance     = total_balance - $2,
			available_balance = available_balance - $2,
			last_synced_at    = now()
		WHERE vault_pda = $1
	`, fromVault, amount); err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "debit vault in transfer", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vaults SET
			total_balance     = total_balance + $2,
			available_balance = available_balance + $2,
			last_synced_at    = now()
		WHERE vault_pda = $1
	`, toVault, amount); err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "credit vault in transfer", err)
	}

	if commit != nil {
		if err := commit(); err != nil {
			return vaulterrors.Wrap(vaulterrors.KindTransientIO, "commit transfer tx", err)
		}
	}
	return nil
}

// IsProcessed reports whether a signature has already been applied,
// mirroring processed_events.rs's is_processed.
func (s *Store) IsProcessed(ctx context.Context, signature string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE tx_signature = $1`, signature).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, vaulterrors.Wrap(vaulterrors.KindTransientIO, "check processed event", err)
	}
	return true, nil
}

// MarkProcessed records that a signature has been applied, idempotently.
func (s *Store) MarkProcessed(ctx context.Context, signature string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `INSERT INTO processed_events (tx_signature) VALUES ($1) ON CONFLICT DO NOTHING`, signature)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "mark event processed", err)
	}
	return nil
}

// InsertTransaction records a transaction row, mirroring
// transaction_repo.rs's insert_transaction. Duplicate signatures are
// silently ignored (ON CONFLICT DO NOTHING), matching the idempotent
// indexer contract.
func (s *Store) InsertTransaction(ctx context.Context, t Transaction) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, vault_pda, program_id, network, user_pubkey,
			tx_signature, tx_type, amount, slot, block_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (tx_signature) DO NOTHING
	`, t.ID, t.VaultPDA, t.ProgramID, t.Network, t.UserPubkey,
		t.TxSignature, t.TxType, t.Amount, t.Slot, t.BlockTime)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "insert transaction", err)
	}
	return nil
}

// GetTransactionsByUser returns every transaction for a user, newest slot
// first, mirroring transaction_repo.rs's get_by_user.
func (s *Store) GetTransactionsByUser(ctx context.Context, userPubkey string) ([]Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, vault_pda, program_id, network, user_pubkey,
			tx_signature, tx_type, amount, slot, block_time
		FROM transactions WHERE user_pubkey = $1 ORDER BY slot DESC
	`, userPubkey)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.KindTransientIO, "get transactions by user", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.VaultPDA, &t.ProgramID, &t.Network, &t.UserPubkey,
			&t.TxSignature, &t.TxType, &t.Amount, &t.Slot, &t.BlockTime); err != nil {
			return nil, vaulterrors.Wrap(vaulterrors.KindParse, "scan transaction row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertSnapshot records a single balance snapshot, mirroring
// snapshot_repo.rs's insert_snapshot.
func (s *Store) InsertSnapshot(ctx context.Context, snap BalanceSnapshot) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO balance_snapshots (
			vault_pda, program_id, network, snapshot_time,
			total_balance, locked_balance, available_balance
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (vault_pda, snapshot_time) DO NOTHING
	`, snap.VaultPDA, snap.ProgramID, snap.Network, snap.SnapshotTime,
		snap.TotalBalance, snap.LockedBalance, snap.AvailableBalance)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "insert balance snapshot", err)
	}
	return nil
}

// SnapshotAllVaults takes a snapshot of every vault at snapshotTime,
// mirroring snapshot_repo.rs's snapshot_all_vaults.
func (s *Store) SnapshotAllVaults(ctx context.Context, vaults []Vault, snapshotTime time.Time) error {
	for _, v := range vaults {
		err := s.InsertSnapshot(ctx, BalanceSnapshot{
			VaultPDA:         v.VaultPDA,
			ProgramID:        v.ProgramID,
			Network:          v.Network,
			SnapshotTime:     snapshotTime,
			TotalBalance:     v.TotalBalance,
			LockedBalance:    v.LockedBalance,
			AvailableBalance: v.AvailableBalance,
		})
		if err != nil {
			return fmt.Errorf("snapshot vault %s: %w", v.VaultPDA, err)
		}
	}
	return nil
}

// InsertReconciliationEntry records a discrepancy, mirroring
// reconciliation_repo.rs's insert_discrepancy.
func (s *Store) InsertReconciliationEntry(ctx context.Context, e ReconciliationEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reconciliation_logs (
			id, vault_pda, program_id, network,
			onchain_balance, offchain_balance, discrepancy, detected_at, resolved
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.VaultPDA, e.ProgramID, e.Network,
		e.OnchainBalance, e.OffchainBalance, e.Discrepancy, e.DetectedAt, e.Resolved)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "insert reconciliation entry", err)
	}
	return nil
}

// IsProgramAuthorized mirrors program_repo.rs's is_program_authorized.
func (s *Store) IsProgramAuthorized(ctx context.Context, programID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM authorized_programs WHERE program_id = $1`, programID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, vaulterrors.Wrap(vaulterrors.KindTransientIO, "check program authorization", err)
	}
	return true, nil
}

// InsertAuthorizedProgram mirrors program_repo.rs's insert_authorized_program.
func (s *Store) InsertAuthorizedProgram(ctx context.Context, programID, adminPubkey string, addedAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO authorized_programs (program_id, admin_pubkey, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (program_id) DO NOTHING
	`, programID, adminPubkey, addedAt)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "insert authorized program", err)
	}
	return nil
}

// InsertProgramCall appends an audit row, mirroring
// program_repo.rs's insert_program_call.
func (s *Store) InsertProgramCall(ctx context.Context, c ProgramCall) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO program_calls (
			tx_signature, caller_program, vault_pda, instruction, amount, slot, block_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tx_signature) DO NOTHING
	`, c.TxSignature, c.CallerProgram, c.VaultPDA, c.Instruction, c.Amount, c.Slot, c.BlockTime)
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "insert program call", err)
	}
	return nil
}
