package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/ratelimit"
	"github.com/trivia-pay/internal/reconcile"
)

// DefaultRefreshInterval is the period between background refreshes
const DefaultRefreshInterval = 30 * time.Second

// Refresher runs one reconciliation pass for an address
type Refresher interface {
	Refresh(ctx context.Context, address string) (*reconcile.Report, error)
}

// RefreshWorker keeps one connected address reconciled. It refreshes
// immediately on Start and then every interval until Stop.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
	logger    *logging.Logger

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	mu        sync.RWMutex
	running   bool
	address   string
	cancel    context.CancelFunc
	triggerCh chan struct{}
	doneCh    chan struct{}
	lastRun   time.Time
	lastError string
	runs      int
}

// RefreshWorkerConfig holds configuration for a refresh worker
type RefreshWorkerConfig struct {
	Refresher Refresher
	Interval  time.Duration
}

// RefreshWorkerStatus is a snapshot of the worker
type RefreshWorkerStatus struct {
	Running         bool      `json:"running"`
	Address         string    `json:"address,omitempty"`
	LastRun         time.Time `json:"lastRun"`
	LastError       string    `json:"lastError,omitempty"`
	Runs            int       `json:"runs"`
	IntervalSeconds int       `json:"intervalSeconds"`
}

// NewRefreshWorker creates a stopped refresh worker
func NewRefreshWorker(cfg *RefreshWorkerConfig) (*RefreshWorker, error) {
	if cfg.Refresher == nil {
		return nil, fmt.Errorf("refresher cannot be nil")
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %v", interval)
	}

	return &RefreshWorker{
		refresher: cfg.Refresher,
		interval:  interval,
		logger:    logging.WithComponent("refresh_worker"),
	}, nil
}

// Start begins refreshing address. A loop already running for another
// address is stopped first; starting twice for the same address is a no-op.
func (w *RefreshWorker) Start(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.RLock()
	same := w.running && w.address == address
	w.mu.RUnlock()
	if same {
		return nil
	}
	w.stop()

	loopCtx, cancel := context.WithCancel(ctx)
	triggerCh := make(chan struct{}, 1)
	doneCh := make(chan struct{})

	w.mu.Lock()
	w.running = true
	w.address = address
	w.cancel = cancel
	w.triggerCh = triggerCh
	w.doneCh = doneCh
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"address":  address,
		"interval": w.interval.String(),
	}).Info("Starting refresh worker")

	go w.loop(loopCtx, address, triggerCh, doneCh)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to return. It is safe
// to call when the worker is not running.
func (w *RefreshWorker) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.stop()
}

func (w *RefreshWorker) stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, doneCh, address := w.cancel, w.doneCh, w.address
	w.running = false
	w.address = ""
	w.cancel = nil
	w.triggerCh = nil
	w.mu.Unlock()

	cancel()
	<-doneCh
	w.logger.WithField("address", address).Info("Refresh worker stopped")
}

// Trigger requests an extra refresh. Requests made while one is already
// pending are coalesced. It reports false when the worker is not running.
func (w *RefreshWorker) Trigger() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.running {
		return false
	}
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
	return true
}

// GetStatus returns current worker status
func (w *RefreshWorker) GetStatus() *RefreshWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &RefreshWorkerStatus{
		Running:         w.running,
		Address:         w.address,
		LastRun:         w.lastRun,
		LastError:       w.lastError,
		Runs:            w.runs,
		IntervalSeconds: int(w.interval.Seconds()),
	}
}

// loop is the refresh loop that runs in a goroutine
func (w *RefreshWorker) loop(ctx context.Context, address string, triggerCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx, address)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx, address)
		case <-triggerCh:
			w.runOnce(ctx, address)
		}
	}
}

func (w *RefreshWorker) runOnce(ctx context.Context, address string) {
	_, err := w.refresher.Refresh(ratelimit.WithPriority(ctx, ratelimit.PriorityLow), address)

	w.mu.Lock()
	w.lastRun = time.Now()
	w.runs++
	w.lastError = ""
	if err != nil && !reconcile.IsCancelled(err) {
		w.lastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil && !reconcile.IsCancelled(err) {
		w.logger.WithError(err).WithField("address", address).Warn("Refresh failed")
	}
}
