// Package metronome runs the node's periodic housekeeping: probing known
// remotes, rescoring them, and exiting early if a higher-version peer is
// found (unless the node has disabled self-reboot).
package metronome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/yegor256/zold/internal/nodectx"
	"github.com/yegor256/zold/internal/remotes"
	"github.com/yegor256/zold/pkg/logging"
)

// Interval is how often the metronome ticks.
const Interval = 60 * time.Second

// probeTimeout bounds a single peer HTTP probe.
const probeTimeout = 10 * time.Second

// Metronome periodically probes every registered remote over HTTP,
// refreshes its cached score and error count, and checks whether any peer
// is running a newer protocol version than this node.
type Metronome struct {
	ctx    *nodectx.Context
	log    *logging.Logger
	client *http.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup

	exit func()
}

// New builds a Metronome bound to node, ready to Start.
func New(node *nodectx.Context) *Metronome {
	return &Metronome{
		ctx:    node,
		log:    logging.GetDefault().Component("metronome"),
		client: &http.Client{Timeout: probeTimeout},
		exit:   func() { os.Exit(0) },
	}
}

// Start begins the background ticker loop.
func (m *Metronome) Start() {
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(runCtx)
	m.log.Info("Metronome started", "interval", Interval)
}

// Stop cancels the background loop and waits for it to exit.
func (m *Metronome) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.log.Info("Metronome stopped")
}

func (m *Metronome) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick probes every remote once, highest ranked first, rescoring and
// trimming through Remotes.Iterate's built-in error accounting.
func (m *Metronome) tick(ctx context.Context) {
	m.ctx.Remotes.Iterate(ctx, m.probe)
}

type statusResponse struct {
	Version string `json:"version"`
	Score   int    `json:"score"`
}

// probe fetches the peer's status page, rescores it, and triggers a
// self-exit if the peer reports a newer version and reboots are allowed.
func (m *Metronome) probe(ctx context.Context, e remotes.Entry) error {
	url := fmt.Sprintf("http://%s:%d/", e.Host, e.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("metronome: build request: %w", err)
	}
	req.Header.Set("X-Zold-Network", m.ctx.Config.Network)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("metronome: probe %s:%d: %w", e.Host, e.Port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metronome: %s:%d returned %d", e.Host, e.Port, resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("metronome: decode status from %s:%d: %w", e.Host, e.Port, err)
	}

	if err := m.ctx.Remotes.Rescore(e.Host, e.Port, int64(status.Score)); err != nil {
		m.log.Warn("Failed to rescore remote", "peer", e.Host, "error", err)
	}

	if newerVersion(status.Version, nodectx.Version) && !m.ctx.Config.NeverReboot {
		m.log.Info("Newer version seen on remote, exiting",
			"peer", e.Host, "remote_version", status.Version, "local_version", nodectx.Version)
		m.selfExit()
	}

	return nil
}

// newerVersion reports whether version a is above b, comparing
// major.minor.patch numerically.
func newerVersion(a, b string) bool {
	var x, y [3]int
	fmt.Sscanf(a, "%d.%d.%d", &x[0], &x[1], &x[2])
	fmt.Sscanf(b, "%d.%d.%d", &y[0], &y[1], &y[2])
	for i := range x {
		if x[i] != y[i] {
			return x[i] > y[i]
		}
	}
	return false
}

// selfExit terminates the process so a supervisor can restart it on the
// newer version; tests override exit to observe the call instead.
func (m *Metronome) selfExit() {
	m.exit()
}
