// Package front implements the node's HTTP surface: status and wallet
// routes, protocol/score header middleware, and graceful shutdown via a
// matched ?halt= token.
package front

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/yegor256/zold/internal/id"
	"github.com/yegor256/zold/internal/nodectx"
	"github.com/yegor256/zold/internal/score"
	"github.com/yegor256/zold/pkg/logging"
)

// Protocol is the wire protocol version advertised in X-Zold-Protocol.
const Protocol = "3"

// Front is the node's HTTP server.
type Front struct {
	ctx    *nodectx.Context
	log    *logging.Logger
	server *http.Server
}

// New builds a Front bound to ctx, ready to Start.
func New(ctx *nodectx.Context) *Front {
	return &Front{
		ctx: ctx,
		log: logging.GetDefault().Component("front"),
	}
}

// Start binds addr and begins serving in the background.
func (f *Front) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("front: listen on %s: %w", addr, err)
	}
	f.server = &http.Server{
		Handler:      f.middleware(f.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := f.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			f.log.Error("HTTP server error", "error", err)
		}
	}()
	f.log.Info("Front started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (f *Front) Stop() error {
	if f.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}

func (f *Front) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", f.handleStatus)
	mux.HandleFunc("GET /version", f.handleVersion)
	mux.HandleFunc("GET /pid", f.handlePID)
	mux.HandleFunc("GET /score", f.handleScore)
	mux.HandleFunc("GET /remotes", f.handleRemotes)
	mux.HandleFunc("GET /farm", f.handleFarm)
	mux.HandleFunc("GET /metronome", f.handleMetronome)
	mux.HandleFunc("GET /robots.txt", f.handleRobots)
	mux.HandleFunc("GET /favicon.ico", f.handleFavicon)
	mux.HandleFunc("GET /wallet/{id}", f.handleWalletGet)
	mux.HandleFunc("GET /wallet/{id}/balance", f.handleWalletBalance)
	mux.HandleFunc("GET /wallet/{id}/key", f.handleWalletKey)
	mux.HandleFunc("GET /wallet/{id}/mtime", f.handleWalletMtime)
	mux.HandleFunc("GET /wallet/{id}/digest", f.handleWalletDigest)
	mux.HandleFunc("PUT /wallet/{id}", f.handleWalletPut)
	return mux
}

// middleware wraps every handler with the shared response headers, the
// ?halt= shutdown switch, network/protocol/score validation, and
// panic-to-503 recovery.
func (f *Front) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer f.recoverPanic(w)

		best := f.ctx.Farm.Best()[0]
		w.Header().Set("X-Zold-Version", nodectx.Version)
		w.Header().Set("X-Zold-Protocol", Protocol)
		scoreHeader, err := best.Header()
		if err != nil {
			scoreHeader = strconv.Itoa(best.Value())
		}
		w.Header().Set("X-Zold-Score", scoreHeader)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Connection", "close")
		w.Header().Set("Cache-Control", "no-cache")

		if halt := r.URL.Query().Get("halt"); halt != "" {
			if f.ctx.Config.HaltToken != "" && halt == f.ctx.Config.HaltToken {
				f.log.Info("Halt requested, shutting down")
				go f.Stop()
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		if network := r.Header.Get("X-Zold-Network"); network != "" && network != f.ctx.Config.Network {
			http.Error(w, "network mismatch", http.StatusBadRequest)
			return
		}
		if proto := r.Header.Get("X-Zold-Protocol"); proto != "" && proto != Protocol {
			http.Error(w, "protocol mismatch", http.StatusBadRequest)
			return
		}
		if header := r.Header.Get("X-Zold-Score"); header != "" {
			s, err := score.ParseHeader(header)
			if err != nil {
				http.Error(w, "invalid score header", http.StatusBadRequest)
				return
			}
			if s.Value() < s.Strength && !f.ctx.Config.IgnoreScoreWeakness {
				http.Error(w, "score too weak", http.StatusBadRequest)
				return
			}
			if s.Value() > 3 {
				_ = f.ctx.Remotes.Add(s.Host, s.Port)
				_ = f.ctx.Remotes.Rescore(s.Host, s.Port, int64(s.Value()))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (f *Front) recoverPanic(w http.ResponseWriter) {
	if r := recover(); r != nil {
		f.log.Error("Unhandled panic in handler", "panic", r)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "%v\n%s", r, debug.Stack())
	}
}

func (f *Front) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, _ := f.ctx.Wallets.Count()
	best := f.ctx.Farm.Best()[0]
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       nodectx.Version,
		"network":       f.ctx.Config.Network,
		"protocol":      Protocol,
		"score":         best.Value(),
		"pid":           os.Getpid(),
		"cpus":          runtime.NumCPU(),
		"uptime":        f.ctx.Uptime().Seconds(),
		"threads":       f.ctx.Config.Threads,
		"wallets":       count,
		"remotes":       f.ctx.Remotes.Count(),
		"farm":          f.ctx.Farm.ToJSON(),
		"entranceState": "ready",
	})
}

func (f *Front) handleVersion(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, nodectx.Version)
}

func (f *Front) handlePID(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, os.Getpid())
}

func (f *Front) handleScore(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, f.ctx.Farm.ToText())
}

func (f *Front) handleRemotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.ctx.Remotes.All())
}

func (f *Front) handleFarm(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, f.ctx.Farm.ToText())
}

func (f *Front) handleMetronome(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "running since %s", f.ctx.Started.Format(time.RFC3339))
}

func (f *Front) handleRobots(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "User-agent: *\n")
}

func (f *Front) handleFavicon(w http.ResponseWriter, r *http.Request) {
	best := f.ctx.Farm.Best()[0]
	var band string
	switch {
	case best.Value() >= 16:
		band = "green"
	case best.Value() >= 4:
		band = "orange"
	default:
		band = "red"
	}
	http.Redirect(w, r, fmt.Sprintf("https://www.zold.io/logo-%s.png", band), http.StatusFound)
}

func walletIDFromPath(r *http.Request) (id.Id, error) {
	raw := strings.TrimSuffix(strings.TrimSuffix(r.PathValue("id"), ".json"), ".txt")
	return id.Parse(raw)
}

// handleWalletGet serves all three suffix-dispatched views of
// GET /wallet/{id}: the default JSON body+metadata view, the ".json"
// header-only view, and the ".txt" raw ledger dump. A single wildcard
// route is required here because net/http's ServeMux wildcards must match
// a whole path segment; "{id}.json" is not a legal pattern on its own.
func (f *Front) handleWalletGet(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	switch {
	case strings.HasSuffix(raw, ".json"):
		f.handleWalletHeader(w, r)
	case strings.HasSuffix(raw, ".txt"):
		f.handleWalletText(w, r)
	default:
		f.handleWalletFull(w, r)
	}
}

func (f *Front) handleWalletFull(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	digest, _ := wallet.Digest()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      wallet.ID.String(),
		"network": wallet.Network,
		"balance": wallet.Balance().String(),
		"txns":    len(wallet.Txns),
		"digest":  digest,
	})
}

func (f *Front) handleWalletHeader(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       wallet.ID.String(),
		"network":  wallet.Network,
		"protocol": wallet.Protocol,
	})
}

func (f *Front) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, wallet.Balance().BaseUnits())
}

func (f *Front) handleWalletKey(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	text, err := wallet.Pubkey.Text()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, text)
}

func (f *Front) handleWalletMtime(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, wallet.Mtime().UTC().Format(time.RFC3339))
}

func (f *Front) handleWalletDigest(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	digest, err := wallet.Digest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, digest)
}

func (f *Front) handleWalletText(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wallet, err := f.ctx.Wallets.Get(walletID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	body, err := wallet.Render()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(body)
}

func (f *Front) handleWalletPut(w http.ResponseWriter, r *http.Request) {
	walletID, err := id.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sourceScore := 0
	source := r.RemoteAddr
	if header := r.Header.Get("X-Zold-Score"); header != "" {
		if s, err := score.ParseHeader(header); err == nil {
			sourceScore = s.Value()
		}
	}

	modified, err := f.ctx.Entrance.Push(walletID, string(body), int64(sourceScore), source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(modified) == 0 {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modified": modifiedStrings(modified)})
}

func modifiedStrings(ids []id.Id) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
