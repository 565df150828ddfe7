package nodectx

import (
	"path/filepath"
	"testing"

	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/zconfig"
)

func mustID(t *testing.T, s string) id.Id {
	t.Helper()
	v, err := id.Parse(s)
	if err != nil {
		t.Fatalf("id.Parse(%s): %v", s, err)
	}
	return v
}

func TestNewWiresSubsystems(t *testing.T) {
	dir := t.TempDir()
	cfg := zconfig.Default()
	cfg.Home = dir
	cfg.Invoice = "NOPREFIX@0000000000000001"
	cfg.Threads = 0
	cfg.Standalone = true

	priv, err := key.Generate()
	if err != nil {
		t.Fatalf("key.Generate: %v", err)
	}

	ctx, err := New(cfg, priv)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ctx.Wallets == nil || ctx.Remotes == nil || ctx.Farm == nil || ctx.Entrance == nil {
		t.Errorf("expected all subsystems wired, got %+v", ctx)
	}
	if ctx.Uptime() < 0 {
		t.Errorf("uptime should be non-negative")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := zconfig.Default()
	cfg.Home = dir
	cfg.Invoice = "" // invalid

	priv, _ := key.Generate()
	if _, err := New(cfg, priv); err == nil {
		t.Errorf("expected validation error to propagate")
	}
}

func TestWalletsDirUsesConfiguredHome(t *testing.T) {
	dir := t.TempDir()
	cfg := zconfig.Default()
	cfg.Home = dir
	cfg.Invoice = "NOPREFIX@0000000000000001"
	cfg.Threads = 0

	priv, _ := key.Generate()
	ctx, err := New(cfg, priv)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ctx.Wallets.Path(mustID(t, "0000000000000001")) != filepath.Join(cfg.WalletsDir(), "0000000000000001.z") {
		t.Errorf("unexpected wallet path: %s", ctx.Wallets.Path(mustID(t, "0000000000000001")))
	}
}
