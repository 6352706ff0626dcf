// Package txbuilder is the Instruction Builder: a pure, I/O-free package
// that derives vault-related program addresses and assembles instruction
// payloads for the five vault actions. Grounded on
// original_source/src/transaction_builder.rs's derive_vault_pda and
// build_deposit_ix, extended to the other instructions using the same
// account-ordering convention (the on-chain program's ABI itself is out
// of scope, so withdraw/lock/unlock/initialize follow deposit's pattern
// rather than a documented wire contract — see DESIGN.md).
package txbuilder

import (
	"encoding/binary"

	"github.com/withobsrvr/vault-backend/internal/solpubkey"
)

// Token-2022 program id, copied from transaction_builder.rs's constant.
var Token2022ProgramID = mustKey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// AccountMeta mirrors Solana's account metadata triple.
type AccountMeta struct {
	Pubkey   solpubkey.Key
	IsSigner bool
	IsWriter bool
}

// Instruction is a program_id + ordered accounts + opaque data blob, ready
// to be placed into a Message.
type Instruction struct {
	ProgramID solpubkey.Key
	Accounts  []AccountMeta
	Data      []byte
}

// Builder derives addresses and builds instructions for one program.
type Builder struct {
	ProgramID solpubkey.Key
}

// New creates a Builder bound to programID.
func New(programID solpubkey.Key) *Builder {
	return &Builder{ProgramID: programID}
}

// DeriveVaultPDA derives the vault PDA from seeds ["vault", owner],
// matching transaction_builder.rs's derive_vault_pda.
func (b *Builder) DeriveVaultPDA(owner solpubkey.Key) (solpubkey.Key, uint8, error) {
	return solpubkey.FindProgramAddress([][]byte{[]byte("vault"), owner.Bytes()}, b.ProgramID)
}

// DeriveVaultAuthorityPDA derives the vault authority PDA from seeds
// ["vault_authority"], per spec.md §4.6.
func (b *Builder) DeriveVaultAuthorityPDA() (solpubkey.Key, uint8, error) {
	return solpubkey.FindProgramAddress([][]byte{[]byte("vault_authority")}, b.ProgramID)
}

// DeriveAssociatedTokenAccount derives the canonical Token-2022 associated
// token account for (owner, mint), matching
// spl_associated_token_account::get_associated_token_address_with_program_id
// as used by build_deposit_ix.
func DeriveAssociatedTokenAccount(owner, mint solpubkey.Key) (solpubkey.Key, error) {
	ataProgramID := mustKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	seeds := [][]byte{owner.Bytes(), Token2022ProgramID.Bytes(), mint.Bytes()}
	addr, _, err := solpubkey.FindProgramAddress(seeds, ataProgramID)
	return addr, err
}

var discriminatorInitializeVault = [8]byte{48, 191, 163, 44, 71, 129, 63, 164}
var discriminatorDeposit = [8]byte{242, 35, 198, 137, 82, 225, 242, 182}
var discriminatorWithdraw = [8]byte{183, 18, 70, 156, 148, 109, 161, 34}
var discriminatorLockCollateral = [8]byte{161, 216, 135, 122, 12, 104, 211, 101}
var discriminatorUnlockCollateral = [8]byte{167, 213, 221, 147, 129, 209, 132, 190}

func dataWithU64(disc [8]byte, amount uint64) []byte {
	data := make([]byte, 16)
	copy(data, disc[:])
	binary.LittleEndian.PutUint64(data[8:], amount)
	return data
}

// BuildInitializeVaultIx builds the initialize_vault instruction.
func (b *Builder) BuildInitializeVaultIx(owner, mint solpubkey.Key) (Instruction, error) {
	vaultPDA, bump, err := b.DeriveVaultPDA(owner)
	if err != nil {
		return Instruction{}, err
	}
	vaultTokenAccount, err := DeriveAssociatedTokenAccount(vaultPDA, mint)
	if err != nil {
		return Instruction{}, err
	}

	data := make([]byte, 9)
	copy(data, discriminatorInitializeVault[:])
	data[8] = bump

	return Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: owner, IsSigner: true, IsWriter: true},
			{Pubkey: vaultPDA, IsSigner: false, IsWriter: true},
			{Pubkey: vaultTokenAccount, IsSigner: false, IsWriter: true},
			{Pubkey: mint, IsSigner: false, IsWriter: false},
			{Pubkey: Token2022ProgramID, IsSigner: false, IsWriter: false},
		},
		Data: data,
	}, nil
}

// BuildDepositIx builds the deposit instruction, matching
// transaction_builder.rs's build_deposit_ix account ordering exactly.
func (b *Builder) BuildDepositIx(user, mint solpubkey.Key, amount uint64) (Instruction, error) {
	vaultPDA, _, err := b.DeriveVaultPDA(user)
	if err != nil {
		return Instruction{}, err
	}
	userTokenAccount, err := DeriveAssociatedTokenAccount(user, mint)
	if err != nil {
		return Instruction{}, err
	}
	vaultTokenAccount, err := DeriveAssociatedTokenAccount(vaultPDA, mint)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: user, IsSigner: true, IsWriter: true},
			{Pubkey: vaultPDA, IsSigner: false, IsWriter: true},
			{Pubkey: userTokenAccount, IsSigner: false, IsWriter: true},
			{Pubkey: vaultTokenAccount, IsSigner: false, IsWriter: true},
			{Pubkey: mint, IsSigner: false, IsWriter: false},
			{Pubkey: Token2022ProgramID, IsSigner: false, IsWriter: false},
		},
		Data: dataWithU64(discriminatorDeposit, amount),
	}, nil
}

// BuildWithdrawIx builds the withdraw instruction, following deposit's
// account-ordering convention (see package doc).
func (b *Builder) BuildWithdrawIx(user, mint solpubkey.Key, amount uint64) (Instruction, error) {
	vaultPDA, _, err := b.DeriveVaultPDA(user)
	if err != nil {
		return Instruction{}, err
	}
	userTokenAccount, err := DeriveAssociatedTokenAccount(user, mint)
	if err != nil {
		return Instruction{}, err
	}
	vaultTokenAccount, err := DeriveAssociatedTokenAccount(vaultPDA, mint)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: user, IsSigner: true, IsWriter: true},
			{Pubkey: vaultPDA, IsSigner: false, IsWriter: true},
			{Pubkey: userTokenAccount, IsSigner: false, IsWriter: true},
			{Pubkey: vaultTokenAccount, IsSigner: false, IsWriter: true},
			{Pubkey: mint, IsSigner: false, IsWriter: false},
			{Pubkey: Token2022ProgramID, IsSigner: false, IsWriter: false},
		},
		Data: dataWithU64(discriminatorWithdraw, amount),
	}, nil
}

// BuildLockCollateralIx builds the lock_collateral instruction requested
// by an authorized caller program on behalf of user, matching
// cpi_manager.rs's build_lock_collateral_tx call shape.
func (b *Builder) BuildLockCollateralIx(callerProgram, user solpubkey.Key, amount uint64) (Instruction, error) {
	vaultPDA, _, err := b.DeriveVaultPDA(user)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: user, IsSigner: true, IsWriter: false},
			{Pubkey: vaultPDA, IsSigner: false, IsWriter: true},
			{Pubkey: callerProgram, IsSigner: false, IsWriter: false},
		},
		Data: dataWithU64(discriminatorLockCollateral, amount),
	}, nil
}

// BuildUnlockCollateralIx builds the unlock_collateral instruction.
func (b *Builder) BuildUnlockCollateralIx(callerProgram, user solpubkey.Key, amount uint64) (Instruction, error) {
	vaultPDA, _, err := b.DeriveVaultPDA(user)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: user, IsSigner: true, IsWriter: false},
			{Pubkey: vaultPDA, IsSigner: false, IsWriter: true},
			{Pubkey: callerProgram, IsSigner: false, IsWriter: false},
		},
		Data: dataWithU64(discriminatorUnlockCollateral, amount),
	}, nil
}

// EncodeUnsignedMessage serializes an Instruction plus a recent blockhash
// into the flat binary layout this backend uses to hand an unsigned
// transaction to a caller for signing: an empty signatures count (0, since
// nothing is signed yet), then a message of program id, account count,
// each account's 32-byte key plus signer/writable flags, the recent
// blockhash, and the instruction data — mirroring the
// {signatures: [], message: {..., recent_blockhash, instructions}} shape
// spec.md's wire-format section describes. It is not Solana's actual wire
// `Message` format — assembling and compiling a real Solana message is
// cryptographic transaction construction the on-chain program's client is
// responsible for; this backend only ever produces unsigned instruction
// payloads (see spec.md's signing Non-goal).
func EncodeUnsignedMessage(ix Instruction, recentBlockhash string) []byte {
	buf := make([]byte, 0, 16+len(ix.Accounts)*34+8+len(ix.Data)+len(recentBlockhash))

	var signatureCount [4]byte // always 0: this backend never signs
	binary.LittleEndian.PutUint32(signatureCount[:], 0)
	buf = append(buf, signatureCount[:]...)

	var programLen [4]byte
	binary.LittleEndian.PutUint32(programLen[:], uint32(len(ix.ProgramID.Bytes())))
	buf = append(buf, programLen[:]...)
	buf = append(buf, ix.ProgramID.Bytes()...)

	var accountCount [4]byte
	binary.LittleEndian.PutUint32(accountCount[:], uint32(len(ix.Accounts)))
	buf = append(buf, accountCount[:]...)
	for _, acc := range ix.Accounts {
		buf = append(buf, acc.Pubkey.Bytes()...)
		flags := byte(0)
		if acc.IsSigner {
			flags |= 0x1
		}
		if acc.IsWriter {
			flags |= 0x2
		}
		buf = append(buf, flags)
	}

	var blockhashLen [4]byte
	binary.LittleEndian.PutUint32(blockhashLen[:], uint32(len(recentBlockhash)))
	buf = append(buf, blockhashLen[:]...)
	buf = append(buf, []byte(recentBlockhash)...)

	var dataLen [4]byte
	binary.LittleEndian.PutUint32(dataLen[:], uint32(len(ix.Data)))
	buf = append(buf, dataLen[:]...)
	buf = append(buf, ix.Data...)

	return buf
}

func mustKey(base58 string) solpubkey.Key {
	k, err := solpubkey.Parse(base58)
	if err != nil {
		panic(err)
	}
	return k
}
