// Package score implements the immutable proof-of-work artifact: a chain of
// suffix hashes bound to a node identity and invoice, extended by the farm.
package score

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultStrength is the required count of trailing hex zero nibbles.
const DefaultStrength = 6

// Expiry is how long a score remains valid after its start time.
const Expiry = 24 * time.Hour

const timeLayout = "2006-01-02T15:04:05Z"

// Score is an immutable proof-of-work record. Extend never mutates the
// receiver; it returns a new Score with one more suffix.
type Score struct {
	Time     time.Time
	Host     string
	Port     int
	Invoice  string
	Suffixes []string
	Strength int
}

// New creates a zero-value score (value 0) for the given identity.
func New(when time.Time, host string, port int, invoice string, strength int) Score {
	return Score{
		Time:     when.UTC(),
		Host:     host,
		Port:     port,
		Invoice:  invoice,
		Strength: strength,
	}
}

// Value is the number of suffixes accumulated so far.
func (s Score) Value() int {
	return len(s.Suffixes)
}

// Expired reports whether this score is older than Expiry relative to now.
func (s Score) Expired(now time.Time) bool {
	return now.Sub(s.Time) > Expiry
}

// prefix is h0, the starting point of the suffix chain.
func (s Score) prefix() string {
	return fmt.Sprintf("%s %s %d %s", s.Time.Format(timeLayout), s.Host, s.Port, s.Invoice)
}

// Tail computes the final hash of the chain given the score's current
// suffixes.
func (s Score) Tail() string {
	h := s.prefix()
	for _, suf := range s.Suffixes {
		h = chainStep(h, suf)
	}
	return h
}

func chainStep(prevHex, suffix string) string {
	sum := sha256.Sum256([]byte(prevHex + " " + suffix))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether the score's suffix list is empty, or its hash chain
// ends in Strength hex zero nibbles.
func (s Score) Valid() bool {
	if len(s.Suffixes) == 0 {
		return true
	}
	return hasTrailingZeros(s.Tail(), s.Strength)
}

func hasTrailingZeros(h string, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(h) {
		return false
	}
	for _, c := range h[len(h)-n:] {
		if c != '0' {
			return false
		}
	}
	return true
}

// NextHash returns the chain tail that would result from appending suffix to
// s, without constructing a new Score.
func (s Score) NextHash(suffix string) string {
	return chainStep(s.Tail(), suffix)
}

// Extend returns a new Score with suffix appended. The caller is expected to
// have already confirmed the resulting chain is valid.
func (s Score) Extend(suffix string) Score {
	suffixes := make([]string, len(s.Suffixes)+1)
	copy(suffixes, s.Suffixes)
	suffixes[len(suffixes)-1] = suffix
	return Score{
		Time:     s.Time,
		Host:     s.Host,
		Port:     s.Port,
		Invoice:  s.Invoice,
		Suffixes: suffixes,
		Strength: s.Strength,
	}
}

// Text renders the canonical text form:
// "<value>/<strength>: <ISO8601-UTC-time> <host> <port> <invoice> <suffix>*".
func (s Score) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d: %s %s %d %s", s.Value(), s.Strength, s.Time.Format(timeLayout), s.Host, s.Port, s.Invoice)
	for _, suf := range s.Suffixes {
		b.WriteByte(' ')
		b.WriteString(suf)
	}
	return b.String()
}

// Header renders the HTTP header text form:
// "<strength> <time-hex-unix> <host> <port-hex> <prefix> <id> <suffix>*".
func (s Score) Header() (string, error) {
	prefix, id, err := splitInvoice(s.Invoice)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %x %s %x %s %s", s.Strength, s.Time.Unix(), s.Host, s.Port, prefix, id)
	for _, suf := range s.Suffixes {
		b.WriteByte(' ')
		b.WriteString(suf)
	}
	return b.String(), nil
}

func splitInvoice(invoice string) (prefix, id string, err error) {
	parts := strings.SplitN(invoice, "@", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("score: malformed invoice %q", invoice)
	}
	return parts[0], parts[1], nil
}

// Parse decodes the canonical text form produced by Text.
func Parse(text string) (Score, error) {
	head, rest, ok := strings.Cut(text, ": ")
	if !ok {
		return Score{}, fmt.Errorf("score: missing ': ' separator in %q", text)
	}
	valStrength := strings.SplitN(head, "/", 2)
	if len(valStrength) != 2 {
		return Score{}, fmt.Errorf("score: malformed value/strength in %q", head)
	}
	strength, err := strconv.Atoi(valStrength[1])
	if err != nil {
		return Score{}, fmt.Errorf("score: bad strength: %w", err)
	}

	fields := strings.Fields(rest)
	if len(fields) < 4 {
		return Score{}, fmt.Errorf("score: truncated body %q", rest)
	}
	when, err := time.Parse(timeLayout, fields[0])
	if err != nil {
		return Score{}, fmt.Errorf("score: bad time %q: %w", fields[0], err)
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return Score{}, fmt.Errorf("score: bad port %q: %w", fields[2], err)
	}
	s := Score{
		Time:     when.UTC(),
		Host:     fields[1],
		Port:     port,
		Invoice:  fields[3],
		Suffixes: append([]string{}, fields[4:]...),
		Strength: strength,
	}
	return s, nil
}

// ParseHeader decodes the HTTP header text form produced by Header.
func ParseHeader(text string) (Score, error) {
	fields := strings.Fields(text)
	if len(fields) < 6 {
		return Score{}, fmt.Errorf("score: truncated header %q", text)
	}
	strength, err := strconv.Atoi(fields[0])
	if err != nil {
		return Score{}, fmt.Errorf("score: bad strength %q: %w", fields[0], err)
	}
	unixSecs, err := strconv.ParseInt(fields[1], 16, 64)
	if err != nil {
		return Score{}, fmt.Errorf("score: bad time %q: %w", fields[1], err)
	}
	port, err := strconv.ParseInt(fields[3], 16, 64)
	if err != nil {
		return Score{}, fmt.Errorf("score: bad port %q: %w", fields[3], err)
	}
	invoice := fields[4] + "@" + fields[5]
	s := Score{
		Time:     time.Unix(unixSecs, 0).UTC(),
		Host:     fields[2],
		Port:     int(port),
		Invoice:  invoice,
		Strength: strength,
	}
	if len(fields) > 6 {
		s.Suffixes = append([]string{}, fields[6:]...)
	}
	return s, nil
}
