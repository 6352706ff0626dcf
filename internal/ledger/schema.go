package ledger

import "database/sql"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS vaults (
	vault_pda           TEXT PRIMARY KEY,
	program_id          TEXT NOT NULL DEFAULT '',
	network             TEXT NOT NULL DEFAULT 'localnet',
	owner_pubkey        TEXT NOT NULL,
	mint                TEXT NOT NULL,
	vault_token_account TEXT NOT NULL DEFAULT '',
	total_balance       BIGINT NOT NULL DEFAULT 0,
	locked_balance      BIGINT NOT NULL DEFAULT 0,
	available_balance   BIGINT NOT NULL DEFAULT 0,
	total_deposited     BIGINT NOT NULL DEFAULT 0,
	total_withdrawn     BIGINT NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_synced_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_vaults_owner ON vaults (owner_pubkey);

DO $$ BEGIN
	CREATE TYPE transaction_type AS ENUM ('deposit', 'withdraw', 'lock', 'unlock', 'transfer');
EXCEPTION
	WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS transactions (
	id            UUID PRIMARY KEY,
	vault_pda     TEXT NOT NULL,
	program_id    TEXT NOT NULL DEFAULT '',
	network       TEXT NOT NULL DEFAULT 'localnet',
	user_pubkey   TEXT,
	tx_signature  TEXT NOT NULL UNIQUE,
	tx_type       transaction_type NOT NULL,
	amount        BIGINT NOT NULL,
	slot          BIGINT NOT NULL,
	block_time    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_pubkey);

CREATE TABLE IF NOT EXISTS processed_events (
	tx_signature TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS balance_snapshots (
	vault_pda         TEXT NOT NULL,
	program_id        TEXT NOT NULL DEFAULT '',
	network           TEXT NOT NULL DEFAULT 'localnet',
	snapshot_time     TIMESTAMPTZ NOT NULL,
	total_balance     BIGINT NOT NULL,
	locked_balance    BIGINT NOT NULL,
	available_balance BIGINT NOT NULL,
	PRIMARY KEY (vault_pda, snapshot_time)
);

CREATE TABLE IF NOT EXISTS reconciliation_logs (
	id               UUID PRIMARY KEY,
	vault_pda        TEXT NOT NULL,
	program_id       TEXT NOT NULL DEFAULT '',
	network          TEXT NOT NULL DEFAULT 'localnet',
	onchain_balance  BIGINT NOT NULL,
	offchain_balance BIGINT NOT NULL,
	discrepancy      BIGINT NOT NULL,
	detected_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved         BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS authorized_programs (
	program_id   TEXT PRIMARY KEY,
	admin_pubkey TEXT NOT NULL,
	added_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS program_calls (
	tx_signature   TEXT PRIMARY KEY,
	caller_program TEXT NOT NULL,
	vault_pda      TEXT NOT NULL,
	instruction    TEXT NOT NULL,
	amount         BIGINT,
	slot           BIGINT NOT NULL,
	block_time     TIMESTAMPTZ NOT NULL
);
`

// initSchema creates every table the vault backend needs if it doesn't
// already exist, following postgres-consumer/go/main.go's initSchema
// pattern of a single idempotent multi-statement Exec at startup.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
