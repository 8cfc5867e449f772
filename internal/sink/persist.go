package sink

import (
	"context"
	"sync"
	"time"

	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"
	"FlowGuard/internal/sink/store"

	log "github.com/sirupsen/logrus"
)

// persistWorker batches events into the store off the hot path.
type persistWorker struct {
	store     store.Store
	eventChan chan model.Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	batchSize int
	interval  time.Duration
	metrics   *metrics.Metrics
}

func newPersistWorker(st store.Store, queueSize, batchSize int, interval time.Duration, m *metrics.Metrics) *persistWorker {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &persistWorker{
		store:     st,
		eventChan: make(chan model.Event, queueSize),
		stopChan:  make(chan struct{}),
		batchSize: batchSize,
		interval:  interval,
		metrics:   m,
	}
}

func (w *persistWorker) start() {
	w.wg.Add(1)
	go w.run()
}

// stop flushes what is queued and waits for the final write.
func (w *persistWorker) stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// enqueue never blocks; a full queue drops the event.
func (w *persistWorker) enqueue(e model.Event) {
	select {
	case w.eventChan <- e:
	default:
		w.metrics.EventsDropped.WithLabelValues("persist").Inc()
		log.Debug("Persist queue is full, dropping event")
	}
}

func (w *persistWorker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]model.Event, 0, w.batchSize)
	for {
		select {
		case e := <-w.eventChan:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				batch = w.write(batch)
			}
		case <-ticker.C:
			batch = w.write(batch)
		case <-w.stopChan:
			for {
				select {
				case e := <-w.eventChan:
					batch = append(batch, e)
				default:
					w.write(batch)
					return
				}
			}
		}
	}
}

func (w *persistWorker) write(batch []model.Event) []model.Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.Write(ctx, batch); err != nil {
		w.metrics.EventsDropped.WithLabelValues("persist").Add(float64(len(batch)))
		log.WithError(err).WithField("events", len(batch)).Error("Failed to persist events, batch dropped")
	} else {
		w.metrics.EventsPersisted.Add(float64(len(batch)))
	}
	return batch[:0]
}
