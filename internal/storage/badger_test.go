package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestBadger(t *testing.T) *Badger {
	t.Helper()
	cfg := DefaultBadgerConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.GCInterval = time.Hour

	b, err := OpenBadger(cfg, slog.Default())
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadger_GetUpdate(t *testing.T) {
	b := newTestBadger(t)
	ctx := context.Background()
	key := []byte("session/a")

	if _, err := b.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get() on empty db error = %v, want ErrKeyNotFound", err)
	}

	var seen [][]byte
	for i := 1; i <= 3; i++ {
		err := b.Update(ctx, key, func(old []byte) ([]byte, error) {
			seen = append(seen, old)
			return []byte(fmt.Sprint(i)), nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	if seen[0] != nil || string(seen[1]) != "1" || string(seen[2]) != "2" {
		t.Errorf("Update() old values = %q", seen)
	}
	if got, _ := b.Get(ctx, key); string(got) != "3" {
		t.Errorf("Get() = %q, want 3", got)
	}

	boom := errors.New("boom")
	err := b.Update(ctx, key, func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("Update() error = %v, want boom", err)
	}
	if got, _ := b.Get(ctx, key); string(got) != "3" {
		t.Errorf("failed Update() wrote %q", got)
	}
}

func TestBadger_Scan(t *testing.T) {
	b := newTestBadger(t)
	ctx := context.Background()

	for _, k := range []string{"session/1", "session/2", "session/3", "meta/x"} {
		if err := b.Update(ctx, []byte(k), func([]byte) ([]byte, error) { return []byte(k), nil }); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	if err := b.Scan(ctx, []byte("session/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}); err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "session/1,session/2,session/3" {
		t.Errorf("Scan() keys = %v", keys)
	}

	n := 0
	_ = b.Scan(ctx, []byte("session/"), func(_, _ []byte) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("Scan() visited %d keys after stop, want 1", n)
	}
}

func TestBadger_ReopenOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig(dir)
	cfg.GCInterval = time.Hour
	ctx := context.Background()

	b, err := OpenBadger(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Update(ctx, []byte("k"), func([]byte) ([]byte, error) { return []byte("v"), nil }); err != nil {
		t.Fatal(err)
	}
	if n, err := b.GC(ctx); err != nil {
		t.Errorf("GC() = %d, %v", n, err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = OpenBadger(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if got, err := b.Get(ctx, []byte("k")); err != nil || string(got) != "v" {
		t.Errorf("Get() after reopen = %q, %v", got, err)
	}
}

func TestBadger_Closed(t *testing.T) {
	b := newTestBadger(t)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	ctx := context.Background()
	if _, err := b.Get(ctx, []byte("k")); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v", err)
	}
	if err := b.Update(ctx, []byte("k"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Update() after Close error = %v", err)
	}
	if _, err := b.GC(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("GC() after Close error = %v", err)
	}
}

func TestBadger_Collector(t *testing.T) {
	b := newTestBadger(t)
	reg := prometheus.NewRegistry()
	if err := reg.Register(b); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// No GC has run yet, so the timestamp gauge is absent.
	if n := testutil.CollectAndCount(b); n != 4 {
		t.Errorf("CollectAndCount() = %d, want 4", n)
	}

	// In-memory databases skip GC and record no pass.
	if _, err := b.GC(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(b, "exsim_store_last_gc_timestamp_seconds"); n != 0 {
		t.Errorf("last gc gauge present after in-memory GC")
	}
}

func TestOpenBadger_RequiresDir(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}, nil); err == nil {
		t.Error("OpenBadger() should fail without a directory")
	}
}
