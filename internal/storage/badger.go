package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Badger implements KV on Badger v3. It also implements
// prometheus.Collector and reports its size and GC activity at scrape time.
type Badger struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	gcRuns      atomic.Uint64
	gcRewrites  atomic.Uint64
	lastGC      atomic.Int64 // unix nanoseconds
	lsmDesc     *prometheus.Desc
	vlogDesc    *prometheus.Desc
	gcRunsDesc  *prometheus.Desc
	rewriteDesc *prometheus.Desc
	lastGCDesc  *prometheus.Desc

	stop chan struct{}
	done chan struct{}
}

// OpenBadger opens or creates the database described by cfg and starts
// the GC loop.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*Badger, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultBadgerConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = defaults.GCInterval
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = defaults.GCDiscardRatio
	}
	if cfg.ValueLogFileSize <= 0 {
		cfg.ValueLogFileSize = defaults.ValueLogFileSize
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithLogger(badgerLogger{logger})
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}

	b := &Badger{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		lsmDesc:     prometheus.NewDesc("exsim_store_lsm_size_bytes", "Message store LSM tree size.", nil, nil),
		vlogDesc:    prometheus.NewDesc("exsim_store_value_log_size_bytes", "Message store value log size.", nil, nil),
		gcRunsDesc:  prometheus.NewDesc("exsim_store_gc_runs_total", "Value log GC passes.", nil, nil),
		rewriteDesc: prometheus.NewDesc("exsim_store_gc_rewrites_total", "Value log files rewritten by GC.", nil, nil),
		lastGCDesc:  prometheus.NewDesc("exsim_store_last_gc_timestamp_seconds", "Time of the last value log GC pass.", nil, nil),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go b.gcLoop()

	logger.Info("badger opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "sync_writes", cfg.SyncWrites, "gc_interval", cfg.GCInterval)
	return b, nil
}

func (b *Badger) Get(ctx context.Context, key []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (b *Badger) Update(ctx context.Context, key []byte, fn func(old []byte) ([]byte, error)) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		var old []byte
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if old, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		value, err := fn(old)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

func (b *Badger) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(it.Item().KeyCopy(nil), value) {
				return nil
			}
		}
		return nil
	})
}

// GC rewrites value log files until Badger finds nothing worth
// rewriting and returns how many files were rewritten. In-memory
// databases have no value log and return 0.
func (b *Badger) GC(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	if b.cfg.InMemory {
		return 0, nil
	}
	defer func() {
		b.gcRuns.Add(1)
		b.lastGC.Store(time.Now().UnixNano())
	}()

	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return rewrites, err
		}
		err := b.db.RunValueLogGC(b.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return rewrites, nil
		}
		if err != nil {
			return rewrites, fmt.Errorf("badger: gc: %w", err)
		}
		rewrites++
		b.gcRewrites.Add(1)
	}
}

// Close stops the GC loop and closes the database. Safe to call twice.
func (b *Badger) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stop)
	<-b.done
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	b.logger.Info("badger closed")
	return nil
}

func (b *Badger) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.lsmDesc
	ch <- b.vlogDesc
	ch <- b.gcRunsDesc
	ch <- b.rewriteDesc
	ch <- b.lastGCDesc
}

func (b *Badger) Collect(ch chan<- prometheus.Metric) {
	if b.closed.Load() {
		return
	}
	lsm, vlog := b.db.Size()
	ch <- prometheus.MustNewConstMetric(b.lsmDesc, prometheus.GaugeValue, float64(lsm))
	ch <- prometheus.MustNewConstMetric(b.vlogDesc, prometheus.GaugeValue, float64(vlog))
	ch <- prometheus.MustNewConstMetric(b.gcRunsDesc, prometheus.CounterValue, float64(b.gcRuns.Load()))
	ch <- prometheus.MustNewConstMetric(b.rewriteDesc, prometheus.CounterValue, float64(b.gcRewrites.Load()))
	if ns := b.lastGC.Load(); ns > 0 {
		ch <- prometheus.MustNewConstMetric(b.lastGCDesc, prometheus.GaugeValue, float64(ns)/1e9)
	}
}

func (b *Badger) gcLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.GCInterval)
			n, err := b.GC(ctx)
			cancel()
			if err != nil && !errors.Is(err, ErrClosed) {
				b.logger.Error("value log gc failed", "error", err)
			} else if n > 0 {
				b.logger.Debug("value log gc", "rewrites", n)
			}
		}
	}
}

// badgerLogger routes Badger's printf logging to slog. Badger's info
// output is chatty, so it is logged at debug.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Error(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Debug(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Debug(fmt.Sprintf(f, args...)) }
