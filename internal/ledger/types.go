// Package ledger mirrors on-chain vault state into Postgres: vaults,
// their transaction history, idempotency bookkeeping, periodic balance
// snapshots, reconciliation findings, and the authorization/audit tables
// the CPI broker uses. Grounded on original_source/src/db/*.rs, adapted
// to database/sql + github.com/lib/pq following postgres-consumer/go/main.go's
// ON CONFLICT upsert idiom.
package ledger

import "time"

// Vault mirrors a vaults row.
type Vault struct {
	VaultPDA          string
	ProgramID         string
	Network           string
	OwnerPubkey       string
	Mint              string
	VaultTokenAccount string
	TotalBalance      int64
	LockedBalance     int64
	AvailableBalance  int64
	TotalDeposited    int64
	TotalWithdrawn    int64
	CreatedAt         time.Time
	LastSyncedAt      time.Time
}

// TransactionType enumerates the transaction_type Postgres enum.
type TransactionType string

const (
	TxDeposit  TransactionType = "deposit"
	TxWithdraw TransactionType = "withdraw"
	TxLock     TransactionType = "lock"
	TxUnlock   TransactionType = "unlock"
	TxTransfer TransactionType = "transfer"
)

// Transaction mirrors a transactions row.
type Transaction struct {
	ID          string
	VaultPDA    string
	ProgramID   string
	Network     string
	UserPubkey  *string
	TxSignature string
	TxType      TransactionType
	Amount      int64
	Slot        int64
	BlockTime   time.Time
}

// BalanceSnapshot mirrors a balance_snapshots row.
type BalanceSnapshot struct {
	VaultPDA         string
	ProgramID        string
	Network          string
	SnapshotTime     time.Time
	TotalBalance     int64
	LockedBalance    int64
	AvailableBalance int64
}

// ReconciliationEntry mirrors a reconciliation_logs row.
type ReconciliationEntry struct {
	ID              string
	VaultPDA        string
	ProgramID       string
	Network         string
	OnchainBalance  int64
	OffchainBalance int64
	Discrepancy     int64
	DetectedAt      time.Time
	Resolved        bool
}

// AuthorizedProgram mirrors an authorized_programs row.
type AuthorizedProgram struct {
	ProgramID    string
	AdminPubkey  string
	AddedAt      time.Time
}

// ProgramCall mirrors a program_calls row, the CPI broker's audit log.
type ProgramCall struct {
	TxSignature    string
	CallerProgram  string
	VaultPDA       string
	Instruction    string
	Amount         *int64
	Slot           int64
	BlockTime      time.Time
}
