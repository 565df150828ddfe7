// Package walletfile implements the on-disk wallet ledger: a line-oriented,
// append-only file holding a header (network, protocol, id, public key)
// followed by signed transaction rows.
package walletfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yegor256/zold/internal/amount"
	"github.com/yegor256/zold/internal/atomicfile"
	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/txn"
)

// Protocol is the wallet-file format version this node reads and writes.
const Protocol = 3

var networkPattern = regexp.MustCompile(`^[a-z]{4,16}$`)

// Wallet is one parsed, in-memory wallet ledger, mirroring the file at Path.
type Wallet struct {
	Path     string
	Network  string
	Protocol int
	ID       id.Id
	Pubkey   *key.Public
	Txns     []txn.Transaction

	mtime time.Time
}

// ValidateNetwork reports whether n is a legal network name.
func ValidateNetwork(n string) error {
	if !networkPattern.MatchString(n) {
		return fmt.Errorf("walletfile: invalid network %q", n)
	}
	return nil
}

// Init creates a new wallet file at path. It refuses to overwrite an existing
// file unless overwrite is true.
func Init(path string, walletID id.Id, pub *key.Public, network string, overwrite bool) (*Wallet, error) {
	if err := ValidateNetwork(network); err != nil {
		return nil, err
	}
	w := &Wallet{
		Path:     path,
		Network:  network,
		Protocol: Protocol,
		ID:       walletID,
		Pubkey:   pub,
	}
	data, err := w.render()
	if err != nil {
		return nil, err
	}
	if overwrite {
		if err := atomicfile.Replace(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("walletfile: init: %w", err)
		}
	} else {
		if err := atomicfile.CreateNew(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("walletfile: init: %w", err)
		}
	}
	return w, nil
}

// Load reads and parses the wallet file at path.
func Load(path string) (*Wallet, error) {
	data, err := atomicfile.Read(path)
	if err != nil {
		return nil, fmt.Errorf("walletfile: load %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("walletfile: stat %s: %w", path, err)
	}
	w, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("walletfile: parse %s: %w", path, err)
	}
	w.Path = path
	w.mtime = info.ModTime()
	return w, nil
}

// Parse decodes a full wallet file body into a Wallet.
func Parse(body string) (*Wallet, error) {
	lines := strings.Split(body, "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("walletfile: truncated wallet body")
	}
	w := &Wallet{Network: lines[0]}
	if err := ValidateNetwork(w.Network); err != nil {
		return nil, err
	}
	proto, err := strconv.Atoi(lines[1])
	if err != nil {
		return nil, fmt.Errorf("walletfile: bad protocol %q: %w", lines[1], err)
	}
	w.Protocol = proto

	walletID, err := id.Parse(lines[2])
	if err != nil {
		return nil, fmt.Errorf("walletfile: bad id: %w", err)
	}
	w.ID = walletID

	idx := 3
	var pemLines []string
	for idx < len(lines) && lines[idx] != "" {
		pemLines = append(pemLines, lines[idx])
		idx++
	}
	pub, err := key.ParsePublic(strings.Join(pemLines, "\n") + "\n")
	if err != nil {
		return nil, fmt.Errorf("walletfile: bad public key: %w", err)
	}
	w.Pubkey = pub
	idx++ // skip the blank separator line

	for ; idx < len(lines); idx++ {
		line := lines[idx]
		if line == "" {
			continue
		}
		t, err := txn.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("walletfile: bad transaction line %q: %w", line, err)
		}
		w.Txns = append(w.Txns, t)
	}
	return w, nil
}

// Render returns the canonical on-disk byte encoding of the wallet without
// writing it anywhere.
func (w *Wallet) Render() ([]byte, error) {
	return w.render()
}

func (w *Wallet) render() ([]byte, error) {
	pubText, err := w.Pubkey.Text()
	if err != nil {
		return nil, fmt.Errorf("walletfile: render public key: %w", err)
	}
	var b strings.Builder
	b.WriteString(w.Network)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(w.Protocol))
	b.WriteByte('\n')
	b.WriteString(w.ID.String())
	b.WriteByte('\n')
	b.WriteString(pubText) // already newline-terminated
	b.WriteByte('\n')      // blank separator line
	sorted := SortedTxns(w.Txns)
	for _, t := range sorted {
		b.WriteString(t.Line())
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// SortedTxns returns a copy of txns ordered by date ascending, then amount
// descending, the canonical order used by Refurbish and render.
func SortedTxns(txns []txn.Transaction) []txn.Transaction {
	sorted := make([]txn.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Amount.Cmp(sorted[j].Amount) > 0
	})
	return sorted
}

// Save atomically writes the wallet back to Path, creating parent directories
// as needed.
func (w *Wallet) Save(overwrite bool) error {
	data, err := w.render()
	if err != nil {
		return err
	}
	if overwrite || atomicfile.Exists(w.Path) {
		return atomicfile.Replace(w.Path, data, 0o600)
	}
	return atomicfile.CreateNew(w.Path, data, 0o600)
}

// Has reports whether a transaction with the given id and bnf is already
// present, used to reject duplicate appends.
func (w *Wallet) Has(txnID uint16, bnf id.Id) bool {
	for _, t := range w.Txns {
		if t.ID == txnID && t.Bnf == bnf {
			return true
		}
	}
	return false
}

// IsRoot reports whether this wallet is the distinguished issuer wallet.
func (w *Wallet) IsRoot() bool {
	return w.ID.IsRoot()
}

// Balance sums all transaction amounts.
func (w *Wallet) Balance() amount.Amount {
	sum := amount.Zero
	for _, t := range w.Txns {
		sum, _ = sum.Add(t.Amount)
	}
	return sum
}

// Add appends txn t, rejecting overflow and duplicates.
func (w *Wallet) Add(t txn.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("walletfile: add: %w", err)
	}
	if w.Has(t.ID, t.Bnf) {
		return fmt.Errorf("walletfile: add: duplicate transaction id=%04x bnf=%s", t.ID, t.Bnf)
	}
	if _, err := w.Balance().Add(t.Amount); err != nil {
		return fmt.Errorf("walletfile: add: %w", err)
	}
	w.Txns = append(w.Txns, t)
	return nil
}

// MaxNegID returns the largest id among this wallet's negative transactions,
// or -1 if there are none.
func (w *Wallet) MaxNegID() int {
	max := -1
	for _, t := range w.Txns {
		if t.Amount.Sign() < 0 && int(t.ID) > max {
			max = int(t.ID)
		}
	}
	return max
}

// Sub constructs, signs, and appends the negative (outgoing) transaction for
// a payment of amt to bnf, using the next available transaction id.
func (w *Wallet) Sub(amt amount.Amount, prefix string, bnf id.Id, priv *key.Private, details string, when time.Time) (txn.Transaction, error) {
	if amt.Sign() >= 0 {
		return txn.Transaction{}, fmt.Errorf("walletfile: sub: amount must be negative, got %s", amt)
	}
	nextID := w.MaxNegID() + 1
	if nextID > txn.MaxTxnID {
		return txn.Transaction{}, fmt.Errorf("walletfile: sub: transaction id %d exceeds max %d", nextID, txn.MaxTxnID)
	}
	t := txn.Transaction{
		ID:      uint16(nextID),
		Date:    when.UTC(),
		Amount:  amt,
		Prefix:  prefix,
		Bnf:     bnf,
		Details: details,
	}
	if err := t.Sign(priv, w.ID); err != nil {
		return txn.Transaction{}, fmt.Errorf("walletfile: sub: %w", err)
	}
	if err := t.Verify(priv.Public(), w.ID); err != nil {
		return txn.Transaction{}, fmt.Errorf("walletfile: sub: self-verify failed: %w", err)
	}
	if err := w.Add(t); err != nil {
		return txn.Transaction{}, err
	}
	return t, nil
}

// SortedTxnsOf returns this wallet's transactions in canonical order.
func (w *Wallet) SortedTxnsOf() []txn.Transaction {
	return SortedTxns(w.Txns)
}

// Digest is the SHA-256 of the wallet's raw on-disk bytes, used as an
// ETag-like identity for change detection. It reads Path directly so it
// reflects exactly what is on disk, including files written by another
// tool, rather than this package's own canonical re-rendering of them. A
// wallet with no file on disk yet (Path unset, or not yet Saved) falls
// back to its rendered bytes.
func (w *Wallet) Digest() (string, error) {
	var data []byte
	if w.Path != "" && atomicfile.Exists(w.Path) {
		raw, err := atomicfile.Read(w.Path)
		if err != nil {
			return "", err
		}
		data = raw
	} else {
		rendered, err := w.render()
		if err != nil {
			return "", err
		}
		data = rendered
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Mtime returns the last modification time recorded when the wallet was
// loaded from disk; zero for a wallet that did not come from Load (such as
// one returned by Init), even after it has been saved.
func (w *Wallet) Mtime() time.Time {
	return w.mtime
}

// Age returns how long ago the wallet was last modified on disk.
func (w *Wallet) Age() time.Duration {
	if w.mtime.IsZero() {
		return 0
	}
	return time.Since(w.mtime)
}

// Refurbish rewrites the wallet's header and body in canonical sorted order
// and persists it, returning whether the on-disk content actually changed.
func (w *Wallet) Refurbish() (bool, error) {
	before, _ := atomicfile.Read(w.Path)
	data, err := w.render()
	if err != nil {
		return false, err
	}
	if string(before) == string(data) {
		return false, nil
	}
	if err := atomicfile.Replace(w.Path, data, 0o600); err != nil {
		return false, fmt.Errorf("walletfile: refurbish: %w", err)
	}
	return true, nil
}
