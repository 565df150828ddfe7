// Package patch implements the merge algorithm that fuses several candidate
// copies of the same wallet into a single canonical ledger.
package patch

import (
	"fmt"

	"github.com/yegor256/zold/internal/amount"
	"github.com/yegor256/zold/internal/atomicfile"
	"github.com/yegor256/zold/internal/txn"
	"github.com/yegor256/zold/internal/walletfile"
)

// Patch accumulates transactions merged from a sequence of candidates
// sharing one wallet id, network, and public key.
type Patch struct {
	baseline *walletfile.Wallet
	merged   []txn.Transaction
	maxNegID int

	// Strict switches the non-root balance-floor check from the default
	// lenient ceiling (sum of every merged transaction, including
	// positives not yet reconciled) to a stricter one that counts only
	// already-merged outflows. Tests use this to exercise the tighter
	// rule spec.md §9 leaves as an open question; production merges use
	// the lenient default.
	Strict bool
}

// New starts a Patch from baseline, the candidate with the highest source
// score; its own transactions seed the merged set.
func New(baseline *walletfile.Wallet) *Patch {
	p := &Patch{
		baseline: baseline,
		merged:   append([]txn.Transaction{}, baseline.Txns...),
		maxNegID: baseline.MaxNegID(),
	}
	return p
}

func (p *Patch) contains(t txn.Transaction) bool {
	for _, m := range p.merged {
		if m.Equal(t) {
			return true
		}
	}
	return false
}

func (p *Patch) hasNegID(idVal uint16) bool {
	for _, m := range p.merged {
		if m.Amount.Sign() < 0 && m.ID == idVal {
			return true
		}
	}
	return false
}

// balance is the lenient ceiling: every merged transaction counts,
// including positive credits not yet individually reconciled.
func (p *Patch) balance() amount.Amount {
	sum := amount.Zero
	for _, m := range p.merged {
		sum, _ = sum.Add(m.Amount)
	}
	return sum
}

// strictBalance is the tighter ceiling: only already-merged outflows
// count, so an unreconciled credit can never mask a wallet going negative.
func (p *Patch) strictBalance() amount.Amount {
	sum := amount.Zero
	for _, m := range p.merged {
		if m.Amount.Sign() < 0 {
			sum, _ = sum.Add(m.Amount)
		}
	}
	return sum
}

func (p *Patch) ceiling() amount.Amount {
	if p.Strict {
		return p.strictBalance()
	}
	return p.balance()
}

// Merge folds one further candidate wallet into the patch. It is a hard
// error for the candidate to disagree with the baseline's network, id, or
// public key.
func (p *Patch) Merge(candidate *walletfile.Wallet) error {
	if candidate.Network != p.baseline.Network {
		return fmt.Errorf("patch: network mismatch: %s != %s", candidate.Network, p.baseline.Network)
	}
	if candidate.ID != p.baseline.ID {
		return fmt.Errorf("patch: id mismatch: %s != %s", candidate.ID, p.baseline.ID)
	}
	if !candidate.Pubkey.Equal(p.baseline.Pubkey) {
		return fmt.Errorf("patch: public key mismatch")
	}

	isRoot := p.baseline.IsRoot()
	for _, t := range candidate.Txns {
		if p.contains(t) {
			continue
		}
		switch {
		case t.Amount.Sign() < 0:
			if int(t.ID) <= p.maxNegID {
				continue // would revise committed history
			}
			if p.hasNegID(t.ID) {
				continue // conflicting id already claimed
			}
			if err := t.Verify(p.baseline.Pubkey, p.baseline.ID); err != nil {
				continue // signature does not verify against the baseline key
			}
			if !isRoot {
				if bal, err := p.ceiling().Add(t.Amount); err != nil || bal.Sign() < 0 {
					continue // would drive balance below zero
				}
			}
			p.merged = append(p.merged, t)
			if int(t.ID) > p.maxNegID {
				p.maxNegID = int(t.ID)
			}
		case t.Amount.Sign() > 0:
			if t.Sign != "" {
				continue // incoming rows must not carry signatures
			}
			p.merged = append(p.merged, t)
		}
	}
	return nil
}

// Result returns the merged transaction set built so far.
func (p *Patch) Result() []txn.Transaction {
	return append([]txn.Transaction{}, p.merged...)
}

// Save writes the merged wallet to path, returning whether the on-disk
// content actually changed.
func (p *Patch) Save(path string, overwrite bool) (bool, error) {
	merged := &walletfile.Wallet{
		Path:     path,
		Network:  p.baseline.Network,
		Protocol: p.baseline.Protocol,
		ID:       p.baseline.ID,
		Pubkey:   p.baseline.Pubkey,
		Txns:     p.merged,
	}
	var before []byte
	if atomicfile.Exists(path) {
		before, _ = atomicfile.Read(path)
	}
	rendered, err := merged.Render()
	if err != nil {
		return false, err
	}
	if string(before) == string(rendered) {
		return false, nil
	}
	if err := merged.Save(overwrite); err != nil {
		return false, fmt.Errorf("patch: save: %w", err)
	}
	return true, nil
}
