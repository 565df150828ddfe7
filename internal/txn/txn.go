// Package txn implements the single signed or mirrored row of a wallet ledger.
package txn

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/yegor256/zold/internal/amount"
	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/key"
)

const cryptoSHA256 = crypto.SHA256

// MaxTxnID is the largest legal per-wallet transaction id.
const MaxTxnID = 0xFFFF

// MaxDetailsLen is the largest legal length of the free-text details field.
const MaxDetailsLen = 512

// dateLayout is the canonical wire form for Transaction.Date.
const dateLayout = "2006-01-02T15:04:05.000Z"

var prefixPattern = regexp.MustCompile(`^[0-9A-Za-z]{8,32}$`)

// Transaction is one signed (negative, outgoing) or mirrored (positive,
// incoming) row in a wallet ledger.
type Transaction struct {
	ID      uint16
	Date    time.Time
	Amount  amount.Amount
	Prefix  string
	Bnf     id.Id
	Details string
	Sign    string // base64 RSA signature; non-empty iff Amount < 0
}

// ValidatePrefix reports whether p is a legal invoice prefix: 8-32 alphanumeric chars.
func ValidatePrefix(p string) error {
	if !prefixPattern.MatchString(p) {
		return fmt.Errorf("txn: invalid prefix %q: want 8-32 alphanumeric characters", p)
	}
	return nil
}

// ValidateDetails reports whether d is legal free text: printable, <=512 chars.
func ValidateDetails(d string) error {
	if len(d) > MaxDetailsLen {
		return fmt.Errorf("txn: details too long: %d > %d", len(d), MaxDetailsLen)
	}
	for _, r := range d {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("txn: details contains non-printable character %q", r)
		}
		if r == ';' || r == '\n' || r == '\r' {
			return fmt.Errorf("txn: details may not contain %q", r)
		}
	}
	return nil
}

// Validate checks the struct-level invariants from the wallet file spec,
// independent of ledger context (duplicate ids, monotonicity, signatures
// against a particular key are checked by the wallet and patch packages).
func (t Transaction) Validate() error {
	if t.ID > MaxTxnID {
		return fmt.Errorf("txn: id %d exceeds max %d", t.ID, MaxTxnID)
	}
	if t.Amount.IsZero() {
		return fmt.Errorf("txn: amount must be non-zero")
	}
	if err := ValidatePrefix(t.Prefix); err != nil {
		return err
	}
	if err := ValidateDetails(t.Details); err != nil {
		return err
	}
	if t.Amount.Sign() < 0 && t.Sign == "" {
		return fmt.Errorf("txn: negative transaction must carry a signature")
	}
	if t.Amount.Sign() > 0 && t.Sign != "" {
		return fmt.Errorf("txn: positive transaction must not carry a signature")
	}
	return nil
}

// CanonicalBytes returns the deterministic byte encoding a signature is
// computed and verified over, bound to the owning wallet's id.
func (t Transaction) CanonicalBytes(wallet id.Id) []byte {
	fields := []string{
		wallet.String(),
		fmt.Sprintf("%04x", t.ID),
		t.Date.UTC().Format(dateLayout),
		t.Amount.String(),
		t.Prefix,
		t.Bnf.String(),
		t.Details,
	}
	return []byte(strings.Join(fields, ";"))
}

// Sign computes and sets t.Sign using RSA-SHA256 over CanonicalBytes. It is
// a hard error to sign a non-negative transaction.
func (t *Transaction) Sign(priv *key.Private, wallet id.Id) error {
	if t.Amount.Sign() >= 0 {
		return fmt.Errorf("txn: only negative (outgoing) transactions are signed")
	}
	digest := sha256.Sum256(t.CanonicalBytes(wallet))
	sig, err := signPKCS1(priv, digest[:])
	if err != nil {
		return fmt.Errorf("txn: sign: %w", err)
	}
	t.Sign = base64.StdEncoding.EncodeToString(sig)
	return nil
}

func signPKCS1(priv *key.Private, digest []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, priv.Key, cryptoSHA256, digest)
}

// Verify checks t.Sign against pub over CanonicalBytes. Returns an error if
// the transaction carries no signature, or if verification fails.
func (t Transaction) Verify(pub *key.Public, wallet id.Id) error {
	if t.Sign == "" {
		return fmt.Errorf("txn: no signature to verify")
	}
	sig, err := base64.StdEncoding.DecodeString(t.Sign)
	if err != nil {
		return fmt.Errorf("txn: malformed signature: %w", err)
	}
	digest := sha256.Sum256(t.CanonicalBytes(wallet))
	if err := rsa.VerifyPKCS1v15(pub.Key, cryptoSHA256, digest[:], sig); err != nil {
		return fmt.Errorf("txn: signature verification failed: %w", err)
	}
	return nil
}

// Line renders the transaction as a single wallet-file line.
func (t Transaction) Line() string {
	sign := t.Sign
	if sign == "" {
		sign = "-"
	}
	fields := []string{
		fmt.Sprintf("%04x", t.ID),
		t.Date.UTC().Format(dateLayout),
		t.Amount.String(),
		t.Prefix,
		t.Bnf.String(),
		t.Details,
		sign,
	}
	return strings.Join(fields, ";")
}

// Parse parses one wallet-file transaction line.
func Parse(line string) (Transaction, error) {
	fields := strings.Split(line, ";")
	if len(fields) != 7 {
		return Transaction{}, fmt.Errorf("txn: expected 7 fields, got %d", len(fields))
	}
	var t Transaction
	var idVal uint64
	if _, err := fmt.Sscanf(fields[0], "%04x", &idVal); err != nil {
		return Transaction{}, fmt.Errorf("txn: bad id %q: %w", fields[0], err)
	}
	t.ID = uint16(idVal)

	date, err := time.Parse(dateLayout, fields[1])
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: bad date %q: %w", fields[1], err)
	}
	t.Date = date

	amt, err := amount.Parse(fields[2])
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: bad amount %q: %w", fields[2], err)
	}
	t.Amount = amt

	t.Prefix = fields[3]

	bnf, err := id.Parse(fields[4])
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: bad bnf %q: %w", fields[4], err)
	}
	t.Bnf = bnf

	t.Details = fields[5]

	if fields[6] != "-" {
		t.Sign = fields[6]
	}

	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Equal reports structural equality, used by Patch to dedup candidates
// already present in the merged set.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.Date.Equal(o.Date) &&
		t.Amount == o.Amount &&
		t.Prefix == o.Prefix &&
		t.Bnf == o.Bnf &&
		t.Details == o.Details &&
		t.Sign == o.Sign
}

// Mirror returns the positive incoming reflection of a negative outgoing
// transaction, as recorded in the beneficiary's wallet during propagation.
func (t Transaction) Mirror(owner id.Id) Transaction {
	return Transaction{
		ID:      t.ID,
		Date:    t.Date,
		Amount:  t.Amount.Neg(),
		Prefix:  t.Prefix,
		Bnf:     owner,
		Details: t.Details,
		Sign:    "",
	}
}
