package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

// Worker drains dispatch jobs from the queue with a pool of consumers.
type Worker struct {
	queue      taskqueue.Dequeuer
	dispatcher *Dispatcher
	numWorkers int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a worker pool. numWorkers defaults to 4.
func NewWorker(queue taskqueue.Dequeuer, dispatcher *Dispatcher, numWorkers int) *Worker {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Worker{
		queue:      queue,
		dispatcher: dispatcher,
		numWorkers: numWorkers,
	}
}

// Start launches the consumer goroutines.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("worker already running")
	}
	w.running = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	logger.Info("dispatch worker starting", "consumers", w.numWorkers)
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}
	return nil
}

// Stop cancels the consumers and waits for in-flight batches to finish or
// reach a pause point.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	logger.Info("dispatch worker stopping")
	w.wg.Wait()
	logger.Info("dispatch worker stopped")
}

func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if errors.Is(err, taskqueue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "consumer", id, "error", err)
			time.Sleep(time.Second)
			continue
		}

		if err := w.dispatcher.Dispatch(ctx, job.CampaignID, job.StartIndex); err != nil {
			logger.Error("dispatch invocation failed",
				"consumer", id, "campaign_id", job.CampaignID, "error", err)
		}
	}
}
