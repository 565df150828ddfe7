// Package entrance implements the server-side intake pipeline for pushed
// wallet bodies: store as a copy, merge with Patch, and propagate mirror
// transactions to affected beneficiary wallets.
package entrance

import (
	"fmt"

	"github.com/yegor256/zold/internal/copies"
	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/patch"
	"github.com/yegor256/zold/internal/walletfile"
	"github.com/yegor256/zold/pkg/logging"
)

// Entrance wires the wallet registry together with the per-wallet copies
// store to process pushed bodies.
type Entrance struct {
	wallets    *walletfile.Wallets
	copiesRoot string
	network    string
	log        *logging.Logger
}

// New creates an Entrance backed by wallets and a copies directory root.
func New(wallets *walletfile.Wallets, copiesRoot, network string) *Entrance {
	return &Entrance{
		wallets:    wallets,
		copiesRoot: copiesRoot,
		network:    network,
		log:        logging.GetDefault().Component("entrance"),
	}
}

// Push accepts a pushed wallet body, stores it as a candidate copy, merges
// it against all known copies plus the local wallet, and propagates mirror
// transactions on change. It returns the ids of every wallet that was
// modified as a result.
func (e *Entrance) Push(walletID id.Id, body string, sourceScore int64, source string) ([]id.Id, error) {
	candidate, err := walletfile.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("entrance: parse pushed body: %w", err)
	}
	if candidate.ID != walletID {
		return nil, fmt.Errorf("entrance: pushed body id %s does not match path id %s", candidate.ID, walletID)
	}
	if candidate.Network != e.network {
		return nil, fmt.Errorf("entrance: network mismatch: %s != %s", candidate.Network, e.network)
	}

	store, err := copies.Open(e.copiesRoot, walletID)
	if err != nil {
		return nil, fmt.Errorf("entrance: open copies: %w", err)
	}
	if err := store.Add(body, sourceScore, source); err != nil {
		return nil, fmt.Errorf("entrance: store copy: %w", err)
	}

	merged, changed, err := e.merge(walletID, store)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}

	modified := []id.Id{walletID}
	propagated, err := e.propagate(merged)
	if err != nil {
		e.log.Warn("Propagation failed", "wallet", walletID, "error", err)
	}
	modified = append(modified, propagated...)
	return modified, nil
}

// merge runs Patch over all candidate copies plus the existing local wallet
// (if any), saving the result if it changed.
func (e *Entrance) merge(walletID id.Id, store *copies.Copies) (*walletfile.Wallet, bool, error) {
	all, err := store.All()
	if err != nil {
		return nil, false, fmt.Errorf("entrance: list copies: %w", err)
	}
	if len(all) == 0 {
		return nil, false, fmt.Errorf("entrance: no copies to merge for wallet %s", walletID)
	}

	baseline, err := walletfile.Parse(all[0].Body)
	if err != nil {
		return nil, false, fmt.Errorf("entrance: parse baseline copy: %w", err)
	}

	if local, err := e.wallets.Get(walletID); err == nil {
		p := patch.New(local)
		if err := p.Merge(baseline); err != nil {
			e.log.Warn("Merge rejected candidate", "wallet", walletID, "error", err)
		}
		for _, c := range all[1:] {
			cw, err := walletfile.Parse(c.Body)
			if err != nil {
				e.log.Warn("Invalid copy body", "wallet", walletID, "error", err)
				continue
			}
			if err := p.Merge(cw); err != nil {
				e.log.Warn("Merge rejected candidate", "wallet", walletID, "error", err)
			}
		}
		changed, err := p.Save(e.wallets.Path(walletID), true)
		if err != nil {
			return nil, false, fmt.Errorf("entrance: save merged wallet: %w", err)
		}
		merged, err := e.wallets.Get(walletID)
		if err != nil {
			return nil, false, fmt.Errorf("entrance: reload merged wallet: %w", err)
		}
		return merged, changed, nil
	}

	p := patch.New(baseline)
	for _, c := range all[1:] {
		cw, err := walletfile.Parse(c.Body)
		if err != nil {
			e.log.Warn("Invalid copy body", "wallet", walletID, "error", err)
			continue
		}
		if err := p.Merge(cw); err != nil {
			e.log.Warn("Merge rejected candidate", "wallet", walletID, "error", err)
		}
	}
	if _, err := p.Save(e.wallets.Path(walletID), true); err != nil {
		return nil, false, fmt.Errorf("entrance: save new wallet: %w", err)
	}
	merged, err := e.wallets.Get(walletID)
	if err != nil {
		return nil, false, fmt.Errorf("entrance: reload new wallet: %w", err)
	}
	return merged, true, nil
}

// propagate appends the positive mirror of every negative transaction in w
// to its beneficiary's wallet, where that wallet exists locally and does not
// already carry the mirror.
func (e *Entrance) propagate(w *walletfile.Wallet) ([]id.Id, error) {
	var affected []id.Id
	for _, t := range w.Txns {
		if t.Amount.Sign() >= 0 {
			continue
		}
		if t.Bnf == w.ID {
			e.log.Debug("Skipping self-payment mirror", "wallet", w.ID, "txn", t.ID)
			continue
		}
		beneficiary, err := e.wallets.Get(t.Bnf)
		if err != nil {
			continue // beneficiary not hosted on this node
		}
		if beneficiary.Has(t.ID, w.ID) {
			continue
		}
		mirror := t.Mirror(w.ID)
		if err := beneficiary.Add(mirror); err != nil {
			e.log.Warn("Failed to append mirror transaction", "wallet", t.Bnf, "error", err)
			continue
		}
		if err := e.wallets.Save(beneficiary, true); err != nil {
			return affected, fmt.Errorf("entrance: save propagated wallet %s: %w", t.Bnf, err)
		}
		affected = append(affected, t.Bnf)
	}
	return affected, nil
}
