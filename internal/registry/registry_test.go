package registry

import (
	"context"
	"testing"
	"time"

	"github.com/withobsrvr/vault-backend/internal/ledger"
	"github.com/withobsrvr/vault-backend/internal/solpubkey"
	"github.com/withobsrvr/vault-backend/internal/txbuilder"
	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

type fakeStore struct {
	authorized map[string]bool
	calls      []ledger.ProgramCall
	authAdds   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{authorized: map[string]bool{}, authAdds: map[string]string{}}
}

func (f *fakeStore) IsProgramAuthorized(ctx context.Context, programID string) (bool, error) {
	return f.authorized[programID], nil
}

func (f *fakeStore) InsertAuthorizedProgram(ctx context.Context, programID, adminPubkey string, addedAt time.Time) error {
	f.authorized[programID] = true
	f.authAdds[programID] = adminPubkey
	return nil
}

func (f *fakeStore) InsertProgramCall(ctx context.Context, c ledger.ProgramCall) error {
	f.calls = append(f.calls, c)
	return nil
}

func fakeKey(fill byte) solpubkey.Key {
	var k solpubkey.Key
	for i := range k {
		k[i] = fill
	}
	return k
}

type fakeChain struct{}

func (fakeChain) GetLatestBlockhash(ctx context.Context) (string, error) {
	return "fakeblockhash", nil
}

func TestBuildLockCollateralTxRejectsUnauthorizedCaller(t *testing.T) {
	store := newFakeStore()
	programID := fakeKey(0x01)
	b := New(store, txbuilder.New(programID), fakeChain{})

	caller := fakeKey(0x02)
	user := fakeKey(0x03)

	_, err := b.BuildLockCollateralTx(context.Background(), caller, user, 100, 1, time.Now())
	if err == nil {
		t.Fatal("expected error for unauthorized caller")
	}
	if !vaulterrors.Is(err, vaulterrors.KindAuthorization) {
		t.Errorf("expected KindAuthorization, got %v", vaulterrors.KindOf(err))
	}
	if len(store.calls) != 0 {
		t.Error("expected no audit row for a rejected call")
	}
}

func TestBuildLockCollateralTxRecordsAuditRow(t *testing.T) {
	store := newFakeStore()
	programID := fakeKey(0x01)
	caller := fakeKey(0x02)
	user := fakeKey(0x03)
	store.authorized[caller.String()] = true

	b := New(store, txbuilder.New(programID), fakeChain{})

	encoded, err := b.BuildLockCollateralTx(context.Background(), caller, user, 500, 42, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoded == "" {
		t.Error("expected a non-empty base64 payload")
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(store.calls))
	}
	call := store.calls[0]
	if call.Instruction != "lock" {
		t.Errorf("Instruction = %q, want lock", call.Instruction)
	}
	if call.CallerProgram != caller.String() {
		t.Errorf("CallerProgram = %q, want %q", call.CallerProgram, caller.String())
	}
	if call.Amount == nil || *call.Amount != 500 {
		t.Errorf("Amount = %v, want 500", call.Amount)
	}
}

func TestBuildUnlockCollateralTxRecordsAuditRow(t *testing.T) {
	store := newFakeStore()
	programID := fakeKey(0x01)
	caller := fakeKey(0x02)
	user := fakeKey(0x03)
	store.authorized[caller.String()] = true

	b := New(store, txbuilder.New(programID), fakeChain{})

	_, err := b.BuildUnlockCollateralTx(context.Background(), caller, user, 250, 7, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.calls) != 1 || store.calls[0].Instruction != "unlock" {
		t.Errorf("expected 1 unlock audit row, got %v", store.calls)
	}
}

func TestAuthorizeProgramMarksAuthorized(t *testing.T) {
	store := newFakeStore()
	programID := fakeKey(0x01)
	b := New(store, txbuilder.New(programID), fakeChain{})

	target := fakeKey(0x09)
	if err := b.AuthorizeProgram(context.Background(), target.String(), "admin-pubkey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.authorized[target.String()] {
		t.Error("expected program to be marked authorized")
	}
	if store.authAdds[target.String()] != "admin-pubkey" {
		t.Errorf("adminPubkey = %q, want admin-pubkey", store.authAdds[target.String()])
	}
}
