package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Reconciler re-enqueues paid orders whose pipeline stalled, e.g. after a restart
// dropped their delayed job.
type Reconciler interface {
	ReconcileStalled(ctx context.Context) (int, error)
}

// Manager manages the global job queue and background tasks
type Manager struct {
	queue             *Queue
	reconciler        Reconciler
	reconcileInterval time.Duration
	reconcileTicker   *time.Ticker
	stopCh            chan struct{}
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager wraps a queue. interval paces the stalled-order reconciler.
func NewManager(queue *Queue, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Manager{
		queue:             queue,
		reconcileInterval: interval,
		stopCh:            make(chan struct{}),
	}
}

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		cfg := LoadConfig().withDefaults()
		globalManager = NewManager(NewQueue(cfg.Workers), cfg.ReconcileInterval)
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// SetReconciler installs the stalled-order sweep; it runs on the next Start.
func (m *Manager) SetReconciler(r Reconciler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciler = r
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.reconciler != nil {
		m.reconcileTicker = time.NewTicker(m.reconcileInterval)
		m.wg.Add(1)
		go m.reconcileWorker(m.reconciler, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker sweeps once at startup, then on every tick
func (m *Manager) reconcileWorker(r Reconciler, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", m.reconcileInterval)

	m.runReconcile(r)
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			m.runReconcile(r)
		}
	}
}

func (m *Manager) runReconcile(r Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), m.reconcileInterval)
	defer cancel()
	n, err := r.ReconcileStalled(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Reconcile error: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[JobQueue Manager] Re-enqueued %d stalled orders", n)
	}
}

// RunReconcileOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunReconcileOnce(ctx context.Context) (int, error) {
	m.mu.Lock()
	r := m.reconciler
	m.mu.Unlock()
	if r == nil {
		return 0, nil
	}
	return r.ReconcileStalled(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
