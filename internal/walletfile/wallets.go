package walletfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
)

// Ext is the file extension wallet files carry on disk.
const Ext = ".z"

// Wallets is a directory-backed registry of wallets keyed by Id.
type Wallets struct {
	dir string
	mu  sync.Mutex
}

// NewWallets opens (creating if necessary) a wallet registry rooted at dir.
func NewWallets(dir string) (*Wallets, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("walletfile: mkdir wallets dir %s: %w", dir, err)
	}
	return &Wallets{dir: dir}, nil
}

// Path returns the on-disk path for a wallet id, whether or not it exists.
func (ws *Wallets) Path(walletID id.Id) string {
	return filepath.Join(ws.dir, walletID.String()+Ext)
}

// Exists reports whether a wallet file for walletID is present.
func (ws *Wallets) Exists(walletID id.Id) bool {
	_, err := os.Stat(ws.Path(walletID))
	return err == nil
}

// Create initializes a brand-new wallet under this registry.
func (ws *Wallets) Create(walletID id.Id, pub *key.Public, network string) (*Wallet, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return Init(ws.Path(walletID), walletID, pub, network, false)
}

// Get loads the wallet for walletID, or an error if it does not exist.
func (ws *Wallets) Get(walletID id.Id) (*Wallet, error) {
	if !ws.Exists(walletID) {
		return nil, fmt.Errorf("walletfile: wallet %s not found", walletID)
	}
	return Load(ws.Path(walletID))
}

// List returns the ids of every wallet in the registry.
func (ws *Wallets) List() ([]id.Id, error) {
	entries, err := os.ReadDir(ws.dir)
	if err != nil {
		return nil, fmt.Errorf("walletfile: list %s: %w", ws.dir, err)
	}
	var ids []id.Id
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		walletID, err := id.Parse(strings.TrimSuffix(e.Name(), Ext))
		if err != nil {
			continue
		}
		ids = append(ids, walletID)
	}
	return ids, nil
}

// Count returns the number of wallets currently registered.
func (ws *Wallets) Count() (int, error) {
	ids, err := ws.List()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Save persists w while holding this registry's lock, serialising it with
// other Save and Create calls on the same registry. Writes made directly
// through Wallet.Save or patch.Save (as entrance merges do) do not take this
// lock.
func (ws *Wallets) Save(w *Wallet, overwrite bool) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return w.Save(overwrite)
}
