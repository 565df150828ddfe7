package walletfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegor256/zold/internal/amount"
	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/txn"
)

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	if err != nil {
		t.Fatalf("amount.Parse(%s): %v", s, err)
	}
	return a
}

func TestInitAndLoadRoundtrip(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	path := filepath.Join(t.TempDir(), "wallet.z")

	w, err := Init(path, walletID, priv.Public(), "test", false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if w.Protocol != Protocol {
		t.Errorf("protocol = %d, want %d", w.Protocol, Protocol)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != walletID || loaded.Network != "test" {
		t.Errorf("loaded wallet mismatch: %+v", loaded)
	}
	if !loaded.Pubkey.Equal(priv.Public()) {
		t.Errorf("loaded pubkey does not match")
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	path := filepath.Join(t.TempDir(), "wallet.z")

	if _, err := Init(path, walletID, priv.Public(), "test", false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Init(path, walletID, priv.Public(), "test", false); err == nil {
		t.Errorf("expected error re-initializing without overwrite")
	}
	if _, err := Init(path, walletID, priv.Public(), "test", true); err != nil {
		t.Errorf("expected overwrite to succeed: %v", err)
	}
}

func TestAddAndBalance(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	bnf, _ := id.Parse("0000000000000002")
	path := filepath.Join(t.TempDir(), "wallet.z")
	w, err := Init(path, walletID, priv.Public(), "test", false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	incoming := txnPositive(t, 1, bnf, "5")
	if err := w.Add(incoming); err != nil {
		t.Fatalf("Add incoming: %v", err)
	}
	if w.Balance() != mustAmount(t, "5") {
		t.Errorf("balance = %s, want 5", w.Balance())
	}

	if _, err := w.Sub(mustAmount(t, "-2"), "NOPREFIX1", bnf, priv, "pay", time.Now()); err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if w.Balance() != mustAmount(t, "3") {
		t.Errorf("balance after sub = %s, want 3", w.Balance())
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	bnf, _ := id.Parse("0000000000000002")
	path := filepath.Join(t.TempDir(), "wallet.z")
	w, _ := Init(path, walletID, priv.Public(), "test", false)

	t1 := txnPositive(t, 1, bnf, "5")
	if err := w.Add(t1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add(t1); err == nil {
		t.Errorf("expected duplicate rejection")
	}
}

func TestSaveAndDigestChange(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	bnf, _ := id.Parse("0000000000000002")
	path := filepath.Join(t.TempDir(), "wallet.z")
	w, _ := Init(path, walletID, priv.Public(), "test", false)

	// Digest hashes the raw on-disk bytes, so an in-memory Add that hasn't
	// been Saved yet must not move it.
	d1, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if err := w.Add(txnPositive(t, 1, bnf, "1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	d2, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digest should not change before the new transaction is saved")
	}
	if err := w.Save(true); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d3, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d2 == d3 {
		t.Errorf("digest should change once the new transaction is persisted")
	}
}

func TestDigestReflectsExternallyWrittenBytes(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	path := filepath.Join(t.TempDir(), "wallet.z")
	w, err := Init(path, walletID, priv.Public(), "test", false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	before, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	// Simulate another tool appending a trailing comment line directly to
	// the file; Digest must reflect those literal bytes, not a re-render.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, append(data, []byte("# external note\n")...), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	after, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if before == after {
		t.Errorf("digest should change when the on-disk bytes change externally")
	}
}

func TestWalletsRegistry(t *testing.T) {
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	dir := t.TempDir()

	ws, err := NewWallets(dir)
	if err != nil {
		t.Fatalf("NewWallets: %v", err)
	}
	if ws.Exists(walletID) {
		t.Errorf("wallet should not exist yet")
	}
	if _, err := ws.Create(walletID, priv.Public(), "test"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ws.Exists(walletID) {
		t.Errorf("wallet should exist after Create")
	}
	got, err := ws.Get(walletID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != walletID {
		t.Errorf("got wrong wallet id %s", got.ID)
	}
	ids, err := ws.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != walletID {
		t.Errorf("List = %v, want [%s]", ids, walletID)
	}
	count, err := ws.Count()
	if err != nil || count != 1 {
		t.Errorf("Count = %d, %v, want 1, nil", count, err)
	}
}

func txnPositive(t *testing.T, txnID uint16, bnf id.Id, amt string) txn.Transaction {
	t.Helper()
	return txn.Transaction{
		ID:      txnID,
		Date:    time.Now().UTC(),
		Amount:  mustAmount(t, amt),
		Prefix:  "NOPREFIX1",
		Bnf:     bnf,
		Details: "incoming",
	}
}
