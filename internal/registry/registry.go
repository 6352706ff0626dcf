// Package registry is the Authorization Registry and CPI Broker: it
// decides which caller programs may request a lock/unlock of a vault's
// collateral, assembles the unsigned instruction for an approved request,
// and appends an audit row for each approved request (a rejected caller
// gets no audit row). Grounded on
// original_source/src/cpi_manager.rs's CPIManager, adapted so it never
// signs or sends transactions — cryptographic key custody is out of
// scope (spec.md §1 Non-goals), so only the unsigned-transaction-building
// half of CPIManager (build_lock_collateral_tx / build_unlock_collateral_tx)
// has an analogue here; lock_collateral/unlock_collateral's signed-send
// path is intentionally not implemented.
package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/txbuilder"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

// Store is the subset of ledger.Store the broker needs.
type Store interface {
	IsProgramAuthorized(ctx context.Context, programID string) (bool, error)
	InsertAuthorizedProgram(ctx context.Context, programID, adminPubkey string, addedAt time.Time) error
	InsertProgramCall(ctx context.Context, c ledger.ProgramCall) error
}

// BlockhashReader is the subset of chainclient.Client needed to stamp an
// unsigned instruction with a recent blockhash before encoding it.
type BlockhashReader interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// Broker gates and assembles CPI-style lock/unlock requests from sibling
// programs acting on a vault's collateral.
type Broker struct {
	store   Store
	builder *txbuilder.Builder
	chain   BlockhashReader
}

// New creates a Broker bound to one program's instruction builder.
func New(store Store, builder *txbuilder.Builder, chain BlockhashReader) *Broker {
	return &Broker{store: store, builder: builder, chain: chain}
}

// AuthorizeProgram adds programID to the authorization registry,
// mirroring program_repo.rs's insert_authorized_program.
func (b *Broker) AuthorizeProgram(ctx context.Context, programID, adminPubkey string) error {
	return b.store.InsertAuthorizedProgram(ctx, programID, adminPubkey, time.Now().UTC())
}

func (b *Broker) ensureAuthorized(ctx context.Context, callerProgram solpubkey.Key) error {
	authorized, err := b.store.IsProgramAuthorized(ctx, callerProgram.String())
	if err != nil {
		return vaulterrors.Wrap(vaulterrors.KindTransientIO, "check program authorization", err)
	}
	if !authorized {
		return vaulterrors.New(vaulterrors.KindAuthorization, fmt.Sprintf("unauthorized CPI caller: %s", callerProgram))
	}
	return nil
}

// BuildLockCollateralTx verifies callerProgram is authorized, builds the
// lock_collateral instruction, and returns it base64-encoded as an
// unsigned instruction payload for the caller to sign and submit. An
// audit row is appended regardless of whether the instruction is ever
// submitted on-chain, matching cpi_manager.rs's build_lock_collateral_tx.
func (b *Broker) BuildLockCollateralTx(ctx context.Context, callerProgram, user solpubkey.Key, amount int64, slot int64, blockTime time.Time) (string, error) {
	return b.buildCollateralTx(ctx, callerProgram, user, amount, slot, blockTime, "lock", b.builder.BuildLockCollateralIx)
}

// BuildUnlockCollateralTx is the unlock counterpart of BuildLockCollateralTx.
func (b *Broker) BuildUnlockCollateralTx(ctx context.Context, callerProgram, user solpubkey.Key, amount int64, slot int64, blockTime time.Time) (string, error) {
	return b.buildCollateralTx(ctx, callerProgram, user, amount, slot, blockTime, "unlock", b.builder.BuildUnlockCollateralIx)
}

func (b *Broker) buildCollateralTx(
	ctx context.Context,
	callerProgram, user solpubkey.Key,
	amount int64,
	slot int64,
	blockTime time.Time,
	instructionName string,
	buildIx func(callerProgram, user solpubkey.Key, amount uint64) (txbuilder.Instruction, error),
) (string, error) {
	if err := b.ensureAuthorized(ctx, callerProgram); err != nil {
		return "", err
	}

	ix, err := buildIx(callerProgram, user, uint64(amount))
	if err != nil {
		return "", vaulterrors.Wrap(vaulterrors.KindValidation, fmt.Sprintf("build %s instruction", instructionName), err)
	}

	vaultPDA, _, err := b.builder.DeriveVaultPDA(user)
	if err != nil {
		return "", vaulterrors.Wrap(vaulterrors.KindValidation, "derive vault pda", err)
	}

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return "", vaulterrors.Wrap(vaulterrors.KindTransientIO, "fetch recent blockhash", err)
	}

	encoded := base64.StdEncoding.EncodeToString(txbuilder.EncodeUnsignedMessage(ix, blockhash))

	call := ledger.ProgramCall{
		TxSignature:   "",
		CallerProgram: callerProgram.String(),
		VaultPDA:      vaultPDA.String(),
		Instruction:   instructionName,
		Amount:        &amount,
		Slot:          slot,
		BlockTime:     blockTime,
	}
	if err := b.store.InsertProgramCall(ctx, call); err != nil {
		return "", vaulterrors.Wrap(vaulterrors.KindTransientIO, "record program call", err)
	}

	return encoded, nil
}
