package remotes

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAddExistsRemove(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Add("example.com", 80); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !r.Exists("example.com", 80) {
		t.Errorf("expected peer to exist")
	}
	if err := r.Remove("example.com", 80); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r.Exists("example.com", 80) {
		t.Errorf("expected peer to be removed")
	}
}

func TestPersistAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r1, _ := Open(path)
	r1.Add("a.example.com", 1)
	r1.Add("b.example.com", 2)

	r2, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(r2.All()) != 2 {
		t.Fatalf("got %d entries after reload, want 2", len(r2.All()))
	}
}

func TestAutoTrimOnTolerance(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	r.Add("example.com", 80)
	for i := 0; i <= Tolerance; i++ {
		r.Error("example.com", 80)
	}
	if r.Exists("example.com", 80) {
		t.Errorf("peer should have been auto-trimmed after exceeding tolerance")
	}
}

func TestErrorResetOnSuccess(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	r.Add("example.com", 80)
	r.Error("example.com", 80)
	r.Error("example.com", 80)
	if r.Errors("example.com", 80) != 2 {
		t.Fatalf("expected 2 errors, got %d", r.Errors("example.com", 80))
	}

	r.Iterate(context.Background(), func(ctx context.Context, e Entry) error {
		return nil
	})
	if r.Errors("example.com", 80) != 0 {
		t.Errorf("expected errors reset to 0 after successful iteration, got %d", r.Errors("example.com", 80))
	}
}

func TestIterateErrorIncrementsCount(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	r.Add("example.com", 80)
	r.Iterate(context.Background(), func(ctx context.Context, e Entry) error {
		return errors.New("boom")
	})
	if r.Errors("example.com", 80) != 1 {
		t.Errorf("expected 1 error after failing iteration, got %d", r.Errors("example.com", 80))
	}
}

func TestIterateTimeoutMarksError(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	r.Add("127.0.0.1", 9999)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Iterate(ctx, func(ctx context.Context, e Entry) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
				return nil
			}
		})
		close(done)
	}()
	<-done
	if r.Errors("127.0.0.1", 9999) < 1 {
		t.Errorf("expected peer to be marked errored after overrunning, got %d errors", r.Errors("127.0.0.1", 9999))
	}
}

func TestRankingPrefersLowErrorHighScore(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "remotes.csv"))
	r.Add("good", 1)
	r.Rescore("good", 1, 10)
	r.Add("bad", 2)
	for i := 0; i < 3; i++ {
		r.Error("bad", 2)
	}

	ranked := r.ranked()
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked entries, want 2", len(ranked))
	}
	if ranked[0].Host != "good" {
		t.Errorf("expected 'good' to rank first, got %+v", ranked)
	}
}

func TestEmptyRegistryIsNoop(t *testing.T) {
	r := Empty()
	if err := r.Add("x", 1); err != nil {
		t.Fatalf("Add on Empty: %v", err)
	}
	called := false
	r.Iterate(context.Background(), func(ctx context.Context, e Entry) error {
		called = true
		return nil
	})
	if called {
		t.Errorf("Empty registry should never yield a peer to iterate")
	}
}
