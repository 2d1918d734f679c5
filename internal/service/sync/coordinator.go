// Package sync reconciles local unsynced mutations with the remote
// authority: it tracks connectivity, drains the pending queue and owns the
// synced-flag transition.
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/remote"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

// ErrSyncInProgress is returned when a drain is already running. Callers
// may treat it as a no-op; the running drain covers their changes.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config holds coordinator tuning.
type Config struct {
	// Interval between periodic drains while online.
	Interval time.Duration
	// BatchSize caps how many records go into one upload.
	BatchSize int
	// InitiallyOnline is the connectivity sample taken at construction.
	InitiallyOnline bool
}

// Coordinator drives periodic, connectivity-triggered and manual syncs.
// All three trigger paths share one single-flight guard.
type Coordinator struct {
	store     *store.Store
	authority remote.Authority
	clock     clock.Clock
	log       *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config

	online  atomic.Bool
	syncing atomic.Bool
	wake    chan struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a coordinator. The periodic timer does not run until Start.
func New(s *store.Store, authority remote.Authority, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, cfg Config) *Coordinator {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	if m == nil {
		m = metrics.New("clinicsync")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	c := &Coordinator{
		store:     s,
		authority: authority,
		clock:     clk,
		log:       log,
		metrics:   m,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	c.online.Store(cfg.InitiallyOnline)
	return c
}

// Start launches the scheduler. The ticker and the drain loop are owned by
// the coordinator and stop cleanly via Stop or context cancellation.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Stop cancels the scheduler and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := c.clock.Ticker(c.cfg.Interval)
	defer ticker.Stop()

	c.log.Info("sync coordinator started", "interval", c.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			c.log.Info("sync coordinator stopped")
			return
		case <-c.wake:
			c.autoSync(ctx)
		case <-ticker.C():
			if c.online.Load() {
				c.autoSync(ctx)
			}
		}
	}
}

func (c *Coordinator) autoSync(ctx context.Context) {
	if err := c.SyncNow(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			return
		}
		c.log.Error(err, "sync attempt failed")
	}
}

// SetOnline records a connectivity change. The offline-to-online transition
// wakes the scheduler for an immediate drain.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if online && !was {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Online reports the current connectivity flag.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// SyncNow drains the pending queue once. Overlapping invocations return
// ErrSyncInProgress. A failed drain leaves the queue and every unconfirmed
// synced flag untouched; the next trigger retries from the same state.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	if !c.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer c.syncing.Store(false)

	c.metrics.SyncRuns.Inc()
	timer := prometheus.NewTimer(c.metrics.SyncLatency)
	defer timer.ObserveDuration()

	if err := c.drain(ctx); err != nil {
		c.metrics.SyncFailures.Inc()
		return err
	}
	return nil
}

func (c *Coordinator) drain(ctx context.Context) error {
	changes, err := c.store.PendingChanges(ctx)
	if err != nil {
		return apperror.SyncFailed(err)
	}
	c.metrics.PendingQueue.Set(float64(len(changes)))
	if len(changes) == 0 {
		return nil
	}

	c.log.Debug("draining pending changes", "count", len(changes))

	for start := 0; start < len(changes); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(changes) {
			end = len(changes)
		}
		if err := c.drainBatch(ctx, changes[start:end]); err != nil {
			return err
		}
	}

	if n, err := c.store.PendingCount(ctx); err == nil {
		c.metrics.PendingQueue.Set(float64(n))
	}
	return nil
}

func (c *Coordinator) drainBatch(ctx context.Context, changes []model.Change) error {
	batch := make([]remote.Record, 0, len(changes))
	byRecord := make(map[string][]model.Change, len(changes))

	for _, change := range changes {
		if change.Op == model.ChangeOpDelete {
			// The upload contract is upsert-only; deletion entries are
			// retired locally.
			if err := c.store.DequeueChange(ctx, change.ID); err != nil {
				return apperror.SyncFailed(err)
			}
			continue
		}

		row, err := c.store.Get(ctx, change.Collection, change.RecordID)
		if apperror.IsNotFound(err) {
			// Record vanished since it was queued; nothing to upload.
			if err := c.store.DequeueChange(ctx, change.ID); err != nil {
				return apperror.SyncFailed(err)
			}
			continue
		}
		if err != nil {
			return apperror.SyncFailed(err)
		}

		// Coalesce multiple queued mutations of the same record into one
		// upload of its current state.
		if _, seen := byRecord[change.RecordID]; !seen {
			batch = append(batch, remote.Record{
				ID:         change.RecordID,
				Collection: change.Collection,
				Op:         change.Op,
				UpdatedAt:  row.UpdatedAt.UTC().Format(time.RFC3339Nano),
				Payload:    row.Data,
			})
		}
		byRecord[change.RecordID] = append(byRecord[change.RecordID], change)
	}

	if len(batch) == 0 {
		return nil
	}

	results, err := c.authority.Push(ctx, batch)
	if err != nil {
		if apperror.IsSyncFailed(err) {
			return err
		}
		return apperror.SyncFailed(err)
	}

	for _, res := range results {
		queued, ok := byRecord[res.ID]
		if !ok {
			continue
		}
		if !res.OK {
			return apperror.SyncFailed(errors.New("remote rejected record " + res.ID + ": " + res.Error))
		}
		if err := c.store.MarkSynced(ctx, queued[0].Collection, res.ID); err != nil {
			return apperror.SyncFailed(err)
		}
		for _, change := range queued {
			if err := c.store.DequeueChange(ctx, change.ID); err != nil {
				return apperror.SyncFailed(err)
			}
		}
		c.metrics.RecordsUploaded.Inc()
	}
	return nil
}
