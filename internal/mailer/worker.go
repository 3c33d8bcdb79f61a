package mailer

import (
	"sync"

	"github.com/hibiken/asynq"

	"gatekeep.dev/internal/obs"
)

// taskServer is the slice of asynq.Server the manager needs; tests swap in a
// fake so no broker is required.
type taskServer interface {
	Start(h asynq.Handler) error
	Shutdown()
}

// WorkerManager starts and stops the email worker. Register and Shutdown are
// idempotent so the API can call them on every boot and exit path.
type WorkerManager struct {
	mu      sync.Mutex
	srv     taskServer
	handler asynq.Handler
	running bool
}

// NewWorkerManager builds the worker over the shared Redis connection.
// concurrency is the number of tasks processed in parallel; values below one
// fall back to a single worker.
func NewWorkerManager(opt asynq.RedisClientOpt, p *Processor, concurrency int) *WorkerManager {
	if concurrency < 1 {
		concurrency = 1
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueEmail: 1},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskSendVerificationEmail, p)
	mux.Handle(TaskSendResetPasswordEmail, p)
	return &WorkerManager{srv: srv, handler: mux}
}

// Register starts the worker loop. A second call while running is a no-op.
func (w *WorkerManager) Register() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.srv.Start(w.handler); err != nil {
		obs.Error("email worker failed to start", map[string]any{"error": err.Error()})
		return err
	}
	w.running = true
	obs.Info("email worker running", nil)
	return nil
}

// Shutdown stops the worker and waits for in-flight tasks.
func (w *WorkerManager) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.srv.Shutdown()
	w.running = false
	obs.Info("email worker closed", nil)
}
