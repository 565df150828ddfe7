// Package nodectx collects every subsystem a running node needs into one
// explicitly-passed struct, replacing the module-level singletons the
// original design exposed to its HTTP layer.
package nodectx

import (
	"fmt"
	"time"

	"github.com/yegor256/zold/internal/entrance"
	"github.com/yegor256/zold/internal/farm"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/remotes"
	"github.com/yegor256/zold/internal/walletfile"
	"github.com/yegor256/zold/internal/zconfig"
	"github.com/yegor256/zold/pkg/logging"
)

// Version is the node's advertised protocol implementation version.
const Version = "0.1.0"

// Context is the node-wide set of collaborators passed explicitly to route
// handlers and background workers; nothing here is a process global.
type Context struct {
	Config   *zconfig.Config
	Wallets  *walletfile.Wallets
	Remotes  *remotes.Registry
	Farm     *farm.Farm
	Entrance *entrance.Entrance
	Log      *logging.Logger

	Identity *key.Private
	Started  time.Time
}

// New wires every subsystem together from cfg, the single entry point a
// command-line dispatcher or test harness uses to stand up a node.
func New(cfg *zconfig.Config, identity *key.Private) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	wallets, err := walletfile.NewWallets(cfg.WalletsDir())
	if err != nil {
		return nil, fmt.Errorf("nodectx: wallets: %w", err)
	}

	var reg *remotes.Registry
	if cfg.Standalone {
		reg = remotes.Empty()
	} else {
		reg, err = remotes.Open(cfg.RemotesFile())
		if err != nil {
			return nil, fmt.Errorf("nodectx: remotes: %w", err)
		}
	}

	f, err := farm.New(farm.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Invoice:  cfg.Invoice,
		Threads:  cfg.Threads,
		Strength: cfg.Strength,
		History:  cfg.FarmFile(),
	})
	if err != nil {
		return nil, fmt.Errorf("nodectx: farm: %w", err)
	}

	ent := entrance.New(wallets, cfg.CopiesDir(), cfg.Network)

	return &Context{
		Config:   cfg,
		Wallets:  wallets,
		Remotes:  reg,
		Farm:     f,
		Entrance: ent,
		Log:      logging.GetDefault().Component("node"),
		Identity: identity,
		Started:  time.Now(),
	}, nil
}

// Uptime returns how long the node context has been running.
func (c *Context) Uptime() time.Duration {
	return time.Since(c.Started)
}
