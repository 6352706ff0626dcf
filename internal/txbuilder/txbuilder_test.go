package txbuilder

import (
	"bytes"
	"testing"

	"github.com/withobsrvr/vault-backend/internal/solpubkey"
)

func fakeKey(fill byte) solpubkey.Key {
	var k solpubkey.Key
	for i := range k {
		k[i] = fill
	}
	return k
}

func TestBuildDepositIxDiscriminatorAndAmount(t *testing.T) {
	programID := fakeKey(0x01)
	builder := New(programID)

	user := fakeKey(0x02)
	mint := fakeKey(0x03)

	ix, err := builder.BuildDepositIx(user, mint, 12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantDisc := []byte{242, 35, 198, 137, 82, 225, 242, 182}
	if !bytes.Equal(ix.Data[:8], wantDisc) {
		t.Errorf("discriminator = %v, want %v", ix.Data[:8], wantDisc)
	}
	if len(ix.Data) != 16 {
		t.Fatalf("data length = %d, want 16", len(ix.Data))
	}
	if len(ix.Accounts) != 6 {
		t.Errorf("accounts = %d, want 6", len(ix.Accounts))
	}
	if !ix.Accounts[0].IsSigner {
		t.Error("user account should be signer")
	}
}

func TestDeriveVaultPDADeterministic(t *testing.T) {
	programID := fakeKey(0x05)
	builder := New(programID)
	owner := fakeKey(0x06)

	pda1, bump1, err := builder.DeriveVaultPDA(owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pda2, bump2, err := builder.DeriveVaultPDA(owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pda1 != pda2 || bump1 != bump2 {
		t.Error("DeriveVaultPDA should be deterministic")
	}
}

func TestInstructionDiscriminators(t *testing.T) {
	programID := fakeKey(0x07)
	builder := New(programID)
	user := fakeKey(0x08)
	mint := fakeKey(0x09)
	caller := fakeKey(0x0A)

	withdrawIx, err := builder.BuildWithdrawIx(user, mint, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(withdrawIx.Data[:8], []byte{183, 18, 70, 156, 148, 109, 161, 34}) {
		t.Errorf("unexpected withdraw discriminator: %v", withdrawIx.Data[:8])
	}

	lockIx, err := builder.BuildLockCollateralIx(caller, user, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(lockIx.Data[:8], []byte{161, 216, 135, 122, 12, 104, 211, 101}) {
		t.Errorf("unexpected lock discriminator: %v", lockIx.Data[:8])
	}

	unlockIx, err := builder.BuildUnlockCollateralIx(caller, user, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(unlockIx.Data[:8], []byte{167, 213, 221, 147, 129, 209, 132, 190}) {
		t.Errorf("unexpected unlock discriminator: %v", unlockIx.Data[:8])
	}
}
