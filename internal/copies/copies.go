// Package copies manages the per-wallet set of candidate ledger bodies
// fetched from peers, each tagged with the score of the peer that sent it.
package copies

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/yegor256/zold/internal/atomicfile"
	"github.com/yegor256/zold/internal/id"
)

// scoresFile is the sidecar CSV recording each copy's accumulated score and
// source, keyed by copy file name.
const scoresFile = "scores"

// Copy is one immutable candidate wallet body plus its accumulated score.
type Copy struct {
	Name   string
	Body   string
	Score  int64
	Source string
}

// Copies is the directory-backed set of candidates for a single wallet id.
type Copies struct {
	dir string
	mu  sync.Mutex
}

// Open returns the copies directory for walletID under root, creating it if
// necessary.
func Open(root string, walletID id.Id) (*Copies, error) {
	dir := filepath.Join(root, walletID.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("copies: mkdir %s: %w", dir, err)
	}
	return &Copies{dir: dir}, nil
}

func contentName(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])[:16]
}

// Add stores body as a new copy tagged with score from source, unless a copy
// with identical content already exists (dedup by content hash), in which
// case the scores accumulate instead.
func (c *Copies) Add(body string, score int64, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := contentName(body)
	path := filepath.Join(c.dir, name)
	if !atomicfile.Exists(path) {
		if err := atomicfile.CreateNew(path, []byte(body), 0o600); err != nil {
			return fmt.Errorf("copies: store body: %w", err)
		}
	}

	scores, err := c.loadScores()
	if err != nil {
		return err
	}
	entry, ok := scores[name]
	if !ok {
		entry = scoreEntry{source: source}
	}
	entry.score += score
	if source != "" {
		entry.source = source
	}
	scores[name] = entry
	return c.saveScores(scores)
}

type scoreEntry struct {
	score  int64
	source string
}

func (c *Copies) loadScores() (map[string]scoreEntry, error) {
	path := filepath.Join(c.dir, scoresFile)
	scores := map[string]scoreEntry{}
	if !atomicfile.Exists(path) {
		return scores, nil
	}
	data, err := atomicfile.Read(path)
	if err != nil {
		return nil, fmt.Errorf("copies: read scores: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ",", 3)
		if len(fields) != 3 {
			continue
		}
		score, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		scores[fields[0]] = scoreEntry{score: score, source: fields[2]}
	}
	return scores, nil
}

func (c *Copies) saveScores(scores map[string]scoreEntry) error {
	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		e := scores[n]
		fmt.Fprintf(&b, "%s,%d,%s\n", n, e.score, e.source)
	}
	return atomicfile.Replace(filepath.Join(c.dir, scoresFile), []byte(b.String()), 0o600)
}

// All returns every stored copy ordered by descending accumulated score,
// the order Patch expects so its baseline is the first element.
func (c *Copies) All() ([]Copy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("copies: list %s: %w", c.dir, err)
	}
	scores, err := c.loadScores()
	if err != nil {
		return nil, err
	}
	var out []Copy
	for _, e := range entries {
		if e.IsDir() || e.Name() == scoresFile {
			continue
		}
		data, err := atomicfile.Read(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		entry := scores[e.Name()]
		out = append(out, Copy{
			Name:   e.Name(),
			Body:   string(data),
			Score:  entry.score,
			Source: entry.source,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// Count returns the number of stored copies.
func (c *Copies) Count() (int, error) {
	all, err := c.All()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Clean removes every stored copy and its score metadata, typically called
// after a successful merge has absorbed them into the canonical wallet.
func (c *Copies) Clean() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("copies: list %s: %w", c.dir, err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("copies: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
