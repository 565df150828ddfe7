package entrance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yegor256/zold/internal/amount"
	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/txn"
	"github.com/yegor256/zold/internal/walletfile"
)

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	if err != nil {
		t.Fatalf("amount.Parse(%s): %v", s, err)
	}
	return a
}

func setup(t *testing.T) (*Entrance, *walletfile.Wallets) {
	t.Helper()
	dir := t.TempDir()
	ws, err := walletfile.NewWallets(filepath.Join(dir, "wallets"))
	if err != nil {
		t.Fatalf("NewWallets: %v", err)
	}
	return New(ws, filepath.Join(dir, "copies"), "test"), ws
}

func TestPushNewWalletCreatesIt(t *testing.T) {
	e, ws := setup(t)
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")

	w, err := walletfile.Init(filepath.Join(t.TempDir(), "src.z"), walletID, priv.Public(), "test", false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	body, err := w.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	modified, err := e.Push(walletID, string(body), 5, "peer:1")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(modified) != 1 || modified[0] != walletID {
		t.Errorf("modified = %v, want [%s]", modified, walletID)
	}
	if !ws.Exists(walletID) {
		t.Errorf("expected wallet to be created locally")
	}
}

func TestPushPropagatesMirror(t *testing.T) {
	e, ws := setup(t)
	privA, _ := key.Generate()
	privB, _ := key.Generate()
	walletA, _ := id.Parse("0000000000000001")
	walletB, _ := id.Parse("0000000000000002")

	wA, err := ws.Create(walletA, privA.Public(), "test")
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	if err := wA.Add(txn.Transaction{
		ID: 1, Date: time.Now().UTC(), Amount: mustAmount(t, "20"),
		Prefix: "NOPREFIX1", Bnf: walletA, Details: "seed",
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	if err := ws.Save(wA, true); err != nil {
		t.Fatalf("save A: %v", err)
	}

	wB, err := ws.Create(walletB, privB.Public(), "test")
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	_ = wB

	// The sub is added to the in-memory copy only, so the pushed body
	// carries a transaction the locally-saved wallet does not have yet.
	if _, err := wA.Sub(mustAmount(t, "-14.99"), "NOPREFIX1", walletB, privA, "pay", time.Now()); err != nil {
		t.Fatalf("Sub: %v", err)
	}

	body, err := wA.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	modified, err := e.Push(walletA, string(body), 3, "peer:1")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	found := false
	for _, m := range modified {
		if m == walletB {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected B to be among modified wallets: %v", modified)
	}

	reloadedB, err := ws.Get(walletB)
	if err != nil {
		t.Fatalf("Get B: %v", err)
	}
	want := mustAmount(t, "14.99")
	if reloadedB.Balance() != want {
		t.Errorf("B's balance = %s, want %s", reloadedB.Balance(), want)
	}
}

func TestPushRejectsIDMismatch(t *testing.T) {
	e, _ := setup(t)
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")
	other, _ := id.Parse("0000000000000002")

	w, _ := walletfile.Init(filepath.Join(t.TempDir(), "src.z"), walletID, priv.Public(), "test", false)
	body, _ := w.Render()

	if _, err := e.Push(other, string(body), 0, ""); err == nil {
		t.Errorf("expected error on id mismatch")
	}
}

func TestPushRejectsNetworkMismatch(t *testing.T) {
	e, _ := setup(t)
	priv, _ := key.Generate()
	walletID, _ := id.Parse("0000000000000001")

	w, _ := walletfile.Init(filepath.Join(t.TempDir(), "src.z"), walletID, priv.Public(), "prod", false)
	body, _ := w.Render()

	if _, err := e.Push(walletID, string(body), 0, ""); err == nil {
		t.Errorf("expected error on network mismatch")
	}
}
