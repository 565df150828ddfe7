// Package farm implements the concurrent proof-of-work miner: a pool of
// workers that continuously extend the best known score for this node's
// identity, persisting every advance to a history file.
package farm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/yegor256/zold/internal/atomicfile"
	"github.com/yegor256/zold/internal/score"
	"github.com/yegor256/zold/pkg/logging"
)

// Config configures a Farm.
type Config struct {
	Host     string
	Port     int
	Invoice  string
	Threads  int
	Strength int
	History  string // path to the append-only score history file
}

// Farm is the concurrent proof-of-work miner. Workers search disjoint nonce
// ranges; a single mutex-guarded critical section reads the current best
// tail and commits a newly extended score if it is still the best.
type Farm struct {
	cfg Config
	log *logging.Logger

	mu   sync.Mutex
	best []score.Score // descending by value; best[0] is the distinguished best

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Farm and loads any valid, non-expired history matching the
// configured invoice.
func New(cfg Config) (*Farm, error) {
	f := &Farm{
		cfg: cfg,
		log: logging.GetDefault().Component("farm"),
	}
	if err := f.loadHistory(); err != nil {
		return nil, err
	}
	if len(f.best) == 0 {
		f.best = []score.Score{score.New(time.Now(), cfg.Host, cfg.Port, cfg.Invoice, cfg.Strength)}
	}
	return f, nil
}

func (f *Farm) loadHistory() error {
	if f.cfg.History == "" || !atomicfile.Exists(f.cfg.History) {
		return nil
	}
	file, err := os.Open(f.cfg.History)
	if err != nil {
		return fmt.Errorf("farm: open history: %w", err)
	}
	defer file.Close()

	now := time.Now()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s, err := score.Parse(line)
		if err != nil {
			f.log.Warn("Invalid score", "line", line, "error", err)
			continue
		}
		if s.Invoice != f.cfg.Invoice {
			continue
		}
		if s.Expired(now) {
			continue
		}
		if !s.Valid() {
			f.log.Warn("Invalid score", "line", line)
			continue
		}
		f.best = append(f.best, s)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("farm: scan history: %w", err)
	}
	sortDescending(f.best)
	return nil
}

func sortDescending(scores []score.Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Value() > scores[j].Value()
	})
}

// Start launches Threads workers, each continuously extending the current
// best score. It is a no-op if Threads is 0.
func (f *Farm) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.ctx = ctx
	f.cancel = cancel
	for i := 0; i < f.cfg.Threads; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	f.log.Info("Farm started", "threads", f.cfg.Threads, "strength", f.cfg.Strength)
}

// Stop cancels all workers and waits for them to exit.
func (f *Farm) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.log.Info("Farm stopped")
}

// worker runs one nonce-search loop, partitioned by worker index so that
// distinct workers never try the same nonce concurrently.
func (f *Farm) worker(index int) {
	defer f.wg.Done()
	nonce := index
	stride := f.cfg.Threads
	if stride == 0 {
		stride = 1
	}
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}
		f.attempt(nonce)
		nonce += stride
	}
}

// attempt tries one nonce against the current best tail, replacing it if the
// extension is valid and still the node's best.
func (f *Farm) attempt(nonce int) {
	f.mu.Lock()
	current := f.currentBestLocked()
	f.mu.Unlock()

	if current.Expired(time.Now()) {
		current = score.New(time.Now(), f.cfg.Host, f.cfg.Port, f.cfg.Invoice, f.cfg.Strength)
	}

	suffix := strconv.Itoa(nonce)
	if !hasTrailingZeros(current.NextHash(suffix), current.Strength) {
		return
	}
	extended := current.Extend(suffix)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentBestLocked().Tail() != current.Tail() {
		return // another worker already moved the best tail; discard this attempt
	}
	f.best = append([]score.Score{extended}, f.best...)
	sortDescending(f.best)
	f.persist(extended)
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

func (f *Farm) currentBestLocked() score.Score {
	if len(f.best) == 0 {
		return score.New(time.Now(), f.cfg.Host, f.cfg.Port, f.cfg.Invoice, f.cfg.Strength)
	}
	return f.best[0]
}

func (f *Farm) persist(s score.Score) {
	if f.cfg.History == "" {
		return
	}
	if err := atomicfile.Append(f.cfg.History, s.Text(), 0o600); err != nil {
		f.log.Warn("Failed to persist score", "error", err)
	}
}

// Best returns the current best-first list of candidate scores.
func (f *Farm) Best() []score.Score {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]score.Score, len(f.best))
	copy(out, f.best)
	return out
}

// ToText renders the distinguished best score's canonical text form.
func (f *Farm) ToText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentBestLocked().Text()
}

// ToJSON renders a JSON-friendly summary of the farm's state.
func (f *Farm) ToJSON() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	best := f.currentBestLocked()
	return map[string]any{
		"best":     []string{best.Text()},
		"value":    best.Value(),
		"strength": best.Strength,
		"threads":  f.cfg.Threads,
	}
}
