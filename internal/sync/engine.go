// Package sync provides the engine that drains the offline mutation queue
// against the counting server and reconciles the results with the local
// entity cache.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thantzin/stockcount/backend/internal/api"
	"github.com/thantzin/stockcount/backend/internal/cache"
	"github.com/thantzin/stockcount/backend/internal/connectivity"
	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/models"
	"github.com/thantzin/stockcount/backend/internal/queue"
)

// RemoteClient is the slice of the API client the engine depends on.
// An interface so tests can stand in for the server.
type RemoteClient interface {
	SyncBatch(ctx context.Context, ops []api.BatchOperation) (*api.BatchResponse, error)
	CreateSession(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
	SubmitCountLine(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
	ReportUnknownItem(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
}

// ItemError records one mutation the server rejected.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result summarizes one drain cycle. Steady-state sync outcomes are data,
// never thrown errors, so a background drain cannot crash the shell.
type Result struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Total   int         `json:"total"`
	Errors  []ItemError `json:"errors"`
}

// Options tunes one drain cycle.
type Options struct {
	// OnProgress, if set, is called after each batch with the number of
	// items processed so far and the total queue length.
	OnProgress func(processed, total int)
}

// Status is the read-only sync state exposed to the UI shell.
type Status struct {
	Syncing  bool    `json:"syncing"`
	Pending  int     `json:"pending"`
	LastSync string  `json:"last_sync,omitempty"`
	LastRun  *Result `json:"last_run,omitempty"`
}

// Engine drains the mutation queue in insertion order. At most one drain
// cycle runs at a time: the lease is an atomic slot acquired at cycle start
// and released on exit, so a second caller gets an empty result instead of
// blocking or queueing.
type Engine struct {
	queue   *queue.OfflineQueue
	cache   *cache.EntityCache
	monitor *connectivity.Monitor
	client  RemoteClient
	cfg     Config

	lease atomic.Bool

	mu      sync.RWMutex
	lastRun *Result
}

// NewEngine creates a sync engine.
func NewEngine(q *queue.OfflineQueue, c *cache.EntityCache, m *connectivity.Monitor, client RemoteClient, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Engine{queue: q, cache: c, monitor: m, client: client, cfg: cfg}
}

// SyncOfflineQueue drains the queue in fixed-size batches. It returns an
// empty result without side effects when a cycle is already running, when
// the monitor reports offline, or when the queue is empty. A transport
// failure aborts the remaining batches and returns the partial result;
// server-rejected items stay queued with their retry counter bumped.
func (e *Engine) SyncOfflineQueue(ctx context.Context, opts *Options) Result {
	if !e.lease.CompareAndSwap(false, true) {
		logging.Debug("sync: drain already in flight, skipping")
		return Result{Errors: []ItemError{}}
	}
	defer e.lease.Store(false)

	result := Result{Errors: []ItemError{}}

	if !e.monitor.EffectiveOnline() {
		logging.Debug("sync: offline, skipping drain")
		return result
	}

	items := e.queue.All()
	if len(items) == 0 {
		return result
	}
	result.Total = len(items)

	logging.Info("sync: draining offline queue",
		map[string]interface{}{"pending": len(items), "batch_size": e.cfg.BatchSize})

	processed := 0
	for start := 0; start < len(items); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		aborted := e.processBatch(ctx, batch, &result)

		processed += len(batch)
		if opts != nil && opts.OnProgress != nil {
			opts.OnProgress(processed, result.Total)
		}

		if aborted {
			// Connectivity is clearly gone; later batches would only fail too.
			break
		}
	}

	if result.Success > 0 {
		e.cache.SetLastSync(time.Now())
	}

	e.mu.Lock()
	e.lastRun = &result
	e.mu.Unlock()

	logging.Info("sync: drain finished",
		map[string]interface{}{
			"success": result.Success,
			"failed":  result.Failed,
			"total":   result.Total,
		})

	return result
}

// processBatch submits one batch and reconciles the verdicts. Returns true
// when the whole batch failed at the transport level and draining should
// stop.
func (e *Engine) processBatch(ctx context.Context, batch []models.OfflineQueueItem, result *Result) bool {
	ops := make([]api.BatchOperation, len(batch))
	for i, item := range batch {
		ops[i] = api.WireOperation(item)
	}

	resp, err := e.client.SyncBatch(ctx, ops)
	if err != nil {
		if errors.Is(err, errors.ErrNetworkRestricted) {
			e.monitor.MarkRestricted()
		}
		logging.Warn("sync: batch request failed, aborting drain",
			map[string]interface{}{"batch_len": len(batch), "error": err.Error()})

		// Items stay queued untouched; counted as failed for this cycle.
		result.Failed += len(batch)
		for _, item := range batch {
			result.Errors = append(result.Errors, ItemError{ID: item.ID, Error: err.Error()})
		}
		return true
	}

	verdicts := make(map[string]api.BatchResult, len(resp.Results))
	for _, r := range resp.Results {
		verdicts[r.ID] = r
	}

	var confirmed []string
	for _, item := range batch {
		verdict, ok := verdicts[item.ID]
		if !ok {
			// Server did not answer for this id; keep it queued untouched.
			result.Failed++
			result.Errors = append(result.Errors, ItemError{ID: item.ID, Error: "no result returned for operation"})
			continue
		}

		if verdict.Success {
			confirmed = append(confirmed, item.ID)
			result.Success++
			continue
		}

		// Server rejected the mutation inside a successful batch: keep it
		// queued for explicit conflict resolution, flag it, bump retries.
		e.queue.IncrementRetries(item.ID, verdict.Message)
		result.Failed++
		result.Errors = append(result.Errors, ItemError{ID: item.ID, Error: verdict.Message})
	}

	if len(confirmed) > 0 {
		e.queue.RemoveMany(confirmed)
	}

	return false
}

// GetSyncStatus returns the read-only sync state for the UI shell.
func (e *Engine) GetSyncStatus() Status {
	e.mu.RLock()
	lastRun := e.lastRun
	e.mu.RUnlock()

	status := Status{
		Syncing: e.lease.Load(),
		Pending: e.queue.Len(),
		LastRun: lastRun,
	}
	if t, ok := e.cache.LastSync(); ok {
		status.LastSync = t.Format(time.RFC3339)
	}
	return status
}

// GetCacheStats exposes cache diagnostics to the UI shell.
func (e *Engine) GetCacheStats() cache.Stats {
	return e.cache.GetStats()
}
