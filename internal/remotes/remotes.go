// Package remotes implements the persistent peer registry that drives
// gossip: a CSV-backed table of hosts with error counters and cached scores.
package remotes

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yegor256/zold/pkg/logging"
)

// Tolerance is the maximum number of consecutive errors a peer may
// accumulate before it is auto-removed.
const Tolerance = 8

// RuntimeLimit bounds how long a single Iterate callback may run before the
// peer is treated as erroneous.
const RuntimeLimit = 16 * time.Second

// Entry is one peer row: host, port, cached score, and error count.
type Entry struct {
	Host   string
	Port   int
	Score  int64
	Errors int
}

func (e Entry) key() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Entry) csv() string {
	return fmt.Sprintf("%s,%d,%d,%d", e.Host, e.Port, e.Score, e.Errors)
}

func parseEntry(line string) (Entry, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("remotes: expected 4 fields, got %d", len(fields))
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("remotes: bad port %q: %w", fields[1], err)
	}
	score, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("remotes: bad score %q: %w", fields[2], err)
	}
	errs, err := strconv.Atoi(fields[3])
	if err != nil {
		return Entry{}, fmt.Errorf("remotes: bad errors %q: %w", fields[3], err)
	}
	return Entry{Host: fields[0], Port: port, Score: score, Errors: errs}, nil
}

// Registry is a CSV-persisted, mutex-guarded peer table.
type Registry struct {
	path  string
	empty bool
	log   *logging.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads (or creates) a registry backed by path.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		log:     logging.GetDefault().Component("remotes"),
		entries: map[string]Entry{},
	}
	if path == "" {
		return r, nil
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Empty returns a registry that is always empty and never mutates, used for
// standalone operation.
func Empty() *Registry {
	return &Registry{
		empty:   true,
		log:     logging.GetDefault().Component("remotes"),
		entries: map[string]Entry{},
	}
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remotes: read %s: %w", r.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			r.log.Warn("Invalid remote", "line", line, "error", err)
			continue
		}
		r.entries[e.key()] = e
	}
	return nil
}

// save must be called with mu held.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(r.entries[k].csv())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(r.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("remotes: write %s: %w", r.path, err)
	}
	return nil
}

// Add registers a new peer, a no-op if it already exists.
func (r *Registry) Add(host string, port int) error {
	if r.empty {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Entry{Host: host, Port: port}.key()
	if _, ok := r.entries[key]; ok {
		return nil
	}
	r.entries[key] = Entry{Host: host, Port: port}
	return r.save()
}

// Remove deletes a peer from the registry.
func (r *Registry) Remove(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Entry{Host: host, Port: port}.key()
	delete(r.entries, key)
	return r.save()
}

// Exists reports whether a peer is registered.
func (r *Registry) Exists(host string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[Entry{Host: host, Port: port}.key()]
	return ok
}

// All returns every registered peer, unordered.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Error increments a peer's error counter, auto-removing it once it exceeds
// Tolerance.
func (r *Registry) Error(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Entry{Host: host, Port: port}.key()
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	e.Errors++
	if e.Errors > Tolerance {
		delete(r.entries, key)
	} else {
		r.entries[key] = e
	}
	return r.save()
}

// Errors reads a peer's current error count.
func (r *Registry) Errors(host string, port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[Entry{Host: host, Port: port}.key()].Errors
}

// Rescore updates a peer's cached score.
func (r *Registry) Rescore(host string, port int, score int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Entry{Host: host, Port: port}.key()
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	e.Score = score
	r.entries[key] = e
	return r.save()
}

func (r *Registry) resetErrors(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Entry{Host: host, Port: port}.key()
	e, ok := r.entries[key]
	if !ok || e.Errors == 0 {
		return nil
	}
	e.Errors = 0
	r.entries[key] = e
	return r.save()
}

// ranked returns All() sorted by (1 - errors/maxErrors)*5 + score/maxScore,
// descending, so low-error high-score peers sort first.
func (r *Registry) ranked() []Entry {
	all := r.All()
	if len(all) == 0 {
		return all
	}
	var maxErrors, maxScore float64
	for _, e := range all {
		if float64(e.Errors) > maxErrors {
			maxErrors = float64(e.Errors)
		}
		if float64(e.Score) > maxScore {
			maxScore = float64(e.Score)
		}
	}
	rank := func(e Entry) float64 {
		errTerm := 5.0
		if maxErrors > 0 {
			errTerm = (1 - float64(e.Errors)/maxErrors) * 5
		}
		scoreTerm := 0.0
		if maxScore > 0 {
			scoreTerm = float64(e.Score) / maxScore
		}
		return errTerm + scoreTerm
	}
	sort.SliceStable(all, func(i, j int) bool {
		return rank(all[i]) > rank(all[j])
	})
	return all
}

// Iterate calls fn for each peer, highest ranked first. If fn returns an
// error, or runs longer than RuntimeLimit, the peer's error counter is
// incremented (and it is removed past Tolerance); otherwise its error
// counter is reset to zero.
func (r *Registry) Iterate(ctx context.Context, fn func(ctx context.Context, e Entry) error) {
	for _, e := range r.ranked() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.iterateOne(ctx, e, fn)
	}
}

func (r *Registry) iterateOne(ctx context.Context, e Entry, fn func(ctx context.Context, e Entry) error) {
	callCtx, cancel := context.WithTimeout(ctx, RuntimeLimit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx, e)
	}()

	select {
	case err := <-done:
		if err != nil {
			r.log.Warn("Peer iteration failed", "peer", e.key(), "error", err)
			_ = r.Error(e.Host, e.Port)
			return
		}
		_ = r.resetErrors(e.Host, e.Port)
	case <-callCtx.Done():
		r.log.Warn("Took too long to execute", "peer", e.key())
		_ = r.Error(e.Host, e.Port)
	}
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
