package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"
	"FlowGuard/internal/sink/store"

	log "github.com/sirupsen/logrus"
)

// Publisher delivers event batches to live subscribers.
type Publisher interface {
	Name() string
	Publish(batch model.Batch) error
	Close() error
}

// Dispatcher is the event sink of the pipeline. Push and Broadcast never
// block; work that cannot be queued is dropped and counted.
type Dispatcher struct {
	cfg        config.SinkConfig
	store      store.Store
	publishers []Publisher
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	recent map[string]*ring
	stats  map[string]map[string]int

	emitChan chan model.Event
	stopChan chan struct{}
	wg       sync.WaitGroup
	persist  *persistWorker

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a dispatcher. st may be nil to keep events in memory only.
func New(cfg config.SinkConfig, st store.Store, m *metrics.Metrics, publishers ...Publisher) *Dispatcher {
	if m == nil {
		m = metrics.Discard()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 2000
	}
	if cfg.BroadcastBatch <= 0 {
		cfg.BroadcastBatch = 10
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 500 * time.Millisecond
	}
	if cfg.Persist.FlushInterval <= 0 {
		cfg.Persist.FlushInterval = 2 * time.Second
	}
	d := &Dispatcher{
		cfg:        cfg,
		store:      st,
		publishers: publishers,
		metrics:    m,
		recent:     make(map[string]*ring),
		stats:      make(map[string]map[string]int),
		emitChan:   make(chan model.Event, cfg.QueueSize),
		stopChan:   make(chan struct{}),
	}
	if st != nil {
		d.persist = newPersistWorker(st, cfg.Persist.QueueSize, cfg.Persist.BatchSize, cfg.Persist.FlushInterval, m)
	}
	return d
}

// Start launches the broadcast and persistence workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		if d.persist != nil {
			d.persist.start()
		}
		d.wg.Add(1)
		go d.broadcaster()
		log.WithField("publishers", len(d.publishers)).Info("Event dispatcher started")
	})
}

// Stop flushes pending broadcasts and persistence, then returns.
// Publishers and the store stay open; their owner closes them.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
		if d.persist != nil {
			d.persist.stop()
		}
		log.Info("Event dispatcher stopped")
	})
}

// LoadRecent seeds the in-memory buffers and statistics from the store.
func (d *Dispatcher) LoadRecent(ctx context.Context, variants []string) error {
	if d.store == nil {
		return nil
	}
	for _, v := range variants {
		events, err := d.store.Recent(ctx, v, d.recentSize())
		if err != nil {
			return fmt.Errorf("failed to load recent events for %s: %w", v, err)
		}
		d.mu.Lock()
		for _, e := range events {
			d.recordLocked(e)
		}
		d.mu.Unlock()
		log.WithFields(log.Fields{"variant": v, "events": len(events)}).Info("Restored recent events")
	}
	return nil
}

// Push records an event in the recent buffer and statistics and queues it
// for persistence.
func (d *Dispatcher) Push(e model.Event) {
	d.mu.Lock()
	d.recordLocked(e)
	d.mu.Unlock()

	d.metrics.Predictions.WithLabelValues(e.Model, e.Label()).Inc()
	if d.persist != nil {
		d.persist.enqueue(e)
	}
}

func (d *Dispatcher) recordLocked(e model.Event) {
	r, ok := d.recent[e.Model]
	if !ok {
		r = newRing(d.recentSize())
		d.recent[e.Model] = r
	}
	r.add(e)

	s, ok := d.stats[e.Model]
	if !ok {
		s = make(map[string]int)
		d.stats[e.Model] = s
	}
	s[e.Label()]++
}

func (d *Dispatcher) recentSize() int {
	if d.cfg.RecentSize <= 0 {
		return 500
	}
	return d.cfg.RecentSize
}

// Broadcast queues events for the publishers.
func (d *Dispatcher) Broadcast(events []model.Event) {
	for _, e := range events {
		select {
		case d.emitChan <- e:
		default:
			d.metrics.EventsDropped.WithLabelValues("broadcast").Inc()
		}
	}
}

// Recent returns up to n of the newest events of a variant, oldest first.
func (d *Dispatcher) Recent(variant string, n int) []model.Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.recent[variant]
	if !ok {
		return []model.Event{}
	}
	return r.last(n)
}

// Stats returns the per-label counts of a variant.
func (d *Dispatcher) Stats(variant string) map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.stats[variant]))
	for k, v := range d.stats[variant] {
		out[k] = v
	}
	return out
}

// broadcaster groups queued events into batches of at most BroadcastBatch,
// sent when full or when BroadcastInterval elapses.
func (d *Dispatcher) broadcaster() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.BroadcastInterval)
	defer ticker.Stop()

	pending := make([]model.Event, 0, d.cfg.BroadcastBatch)
	for {
		select {
		case e := <-d.emitChan:
			pending = append(pending, e)
			if len(pending) >= d.cfg.BroadcastBatch {
				pending = d.publish(pending)
			}
		case <-ticker.C:
			pending = d.publish(pending)
		case <-d.stopChan:
			for {
				select {
				case e := <-d.emitChan:
					pending = append(pending, e)
					if len(pending) >= d.cfg.BroadcastBatch {
						pending = d.publish(pending)
					}
				default:
					d.publish(pending)
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(pending []model.Event) []model.Event {
	if len(pending) == 0 {
		return pending
	}
	items := make([]model.Event, len(pending))
	copy(items, pending)
	batch := model.Batch{Count: len(items), Items: items}
	for _, p := range d.publishers {
		if err := p.Publish(batch); err != nil {
			d.metrics.EventsDropped.WithLabelValues("publish").Add(float64(len(items)))
			log.WithError(err).WithField("publisher", p.Name()).Warn("Failed to publish event batch")
		}
	}
	return pending[:0]
}
