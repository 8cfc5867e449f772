package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FlowGuard/internal/capture"
	"FlowGuard/internal/classifier"
	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/flowtable"
	"FlowGuard/internal/engine/queue"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"

	"github.com/google/gopacket"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of the capture pipeline.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// EventSink receives classified events and retains recent ones.
type EventSink interface {
	model.Sink
	model.EventLog
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running     bool       `json:"running"`
	State       string     `json:"state"`
	Interface   string     `json:"interface,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Model       string     `json:"model"`
	Mode        model.Mode `json:"mode"`
	ActiveFlows int        `json:"active_flows"`
	QueueLen    int        `json:"queue_len"`
}

type item struct {
	pkt gopacket.Packet
	ts  time.Time
}

// session holds the resources of one Start/Stop cycle.
type session struct {
	source capture.Source
	queue  *queue.Queue[item]
	table  *flowtable.Table

	done         chan struct{}
	abortCtx     context.Context
	abort        context.CancelFunc
	producerDone chan struct{}
	consumerDone chan struct{}
	scannerDone  chan struct{}

	flushWg          sync.WaitGroup
	flushSem         chan struct{}
	capacityFlushing atomic.Bool

	// newest capture timestamp seen, used as "now" with the packet time source
	newest atomic.Int64
	// flow variant the table was last fed under
	flowVariant atomic.Value
}

// Manager owns the capture pipeline: producer, consumer, expiry scanner and
// the flush goroutines. Start and Stop may be called from any goroutine.
type Manager struct {
	cfg     *config.Config
	opener  capture.Opener
	adapter *classifier.Adapter
	sink    EventSink
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     State
	iface     string
	startedAt time.Time
	sess      *session
}

// New creates a stopped manager.
func New(cfg *config.Config, opener capture.Opener, adapter *classifier.Adapter, sink EventSink, m *metrics.Metrics) *Manager {
	if m == nil {
		m = metrics.Discard()
	}
	return &Manager{
		cfg:     cfg,
		opener:  opener,
		adapter: adapter,
		sink:    sink,
		metrics: m,
	}
}

// Start opens the capture source and launches the workers. Calling Start
// while the pipeline is starting or running is a no-op.
func (m *Manager) Start(iface string) error {
	m.mu.Lock()
	if m.state != Stopped {
		state := m.state
		m.mu.Unlock()
		log.WithField("state", state).Info("Capture already active, ignoring start")
		return nil
	}
	m.state = Starting
	m.mu.Unlock()

	if iface == "" {
		iface = m.cfg.Capture.Interface
	}
	src, err := m.opener(iface)
	if err != nil {
		m.mu.Lock()
		m.state = Stopped
		m.mu.Unlock()
		return fmt.Errorf("failed to start capture on %q: %w", iface, err)
	}

	s := m.newSession(src)
	go m.produce(s)
	go m.consume(s)
	go m.scan(s)

	m.mu.Lock()
	m.sess = s
	m.iface = src.Name()
	m.startedAt = time.Now()
	m.state = Running
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"source": src.Name(),
		"model":  m.adapter.Selector().Active(),
	}).Info("Live capture started")
	return nil
}

func (m *Manager) newSession(src capture.Source) *session {
	flushes := m.cfg.Flow.MaxConcurrentFlushes
	if flushes <= 0 {
		flushes = 1
	}
	s := &session{
		source:       src,
		queue:        queue.New[item](m.cfg.Capture.QueueSize),
		table:        flowtable.New(m.cfg.Flow.MaxTracked, m.cfg.Flow.EvictFraction),
		done:         make(chan struct{}),
		producerDone: make(chan struct{}),
		consumerDone: make(chan struct{}),
		scannerDone:  make(chan struct{}),
		flushSem:     make(chan struct{}, flushes),
	}
	s.abortCtx, s.abort = context.WithCancel(context.Background())
	return s
}

// Stop shuts the pipeline down. Packets already queued are processed unless
// that takes longer than the stop timeout, in which case the rest of the
// queue is discarded. Every tracked flow is flushed exactly once before Stop
// returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return
	}
	m.state = Stopping
	s := m.sess
	m.mu.Unlock()

	log.Info("Stopping capture...")
	close(s.done)
	s.source.Close()

	select {
	case <-s.consumerDone:
	case <-time.After(m.cfg.Flow.StopTimeout):
		log.WithField("timeout", m.cfg.Flow.StopTimeout).Warn("Consumer did not finish draining before the stop timeout, discarding the rest of the queue")
		s.abort()
		<-s.consumerDone
	}
	<-s.producerDone
	if discarded := s.discardQueued(); discarded > 0 {
		m.metrics.PacketsDropped.WithLabelValues("stop_timeout").Add(float64(discarded))
		log.WithField("packets", discarded).Warn("Discarded queued packets on stop")
	}
	<-s.scannerDone
	s.flushWg.Wait()

	remaining := s.table.Keys()
	m.flush(s, remaining, "stop")

	s.abort()

	m.mu.Lock()
	m.state = Stopped
	m.sess = nil
	m.mu.Unlock()
	m.metrics.FlowsActive.Set(0)
	m.metrics.QueueDepth.Set(0)
	log.WithField("flushed", len(remaining)).Info("Capture stopped")
}

// Wait blocks until the source is exhausted and every queued packet has been
// processed, or ctx is done. It returns immediately when nothing is running.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.consumerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the lifecycle state and pipeline gauges.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		Running: m.state == Running,
		State:   m.state.String(),
		Model:   m.adapter.Selector().Active(),
		Mode:    m.adapter.Selector().ActiveMode(),
	}
	if m.state != Stopped {
		st.Interface = m.iface
		started := m.startedAt
		st.StartedAt = &started
	}
	s := m.sess
	m.mu.Unlock()

	if s != nil {
		st.ActiveFlows = s.table.Size()
		st.QueueLen = s.queue.Len()
	}
	return st
}

// Recent returns the newest n events of the active variant.
func (m *Manager) Recent(n int) []model.Event {
	return m.sink.Recent(m.adapter.Selector().Active(), n)
}

// Stats returns per-label counts of the active variant.
func (m *Manager) Stats() map[string]int {
	return m.sink.Stats(m.adapter.Selector().Active())
}

// discardQueued empties the ingest queue and returns how many packets it held.
func (s *session) discardQueued() int {
	n := 0
	for {
		if _, ok := s.queue.TryDequeue(); !ok {
			return n
		}
		n++
	}
}

// now is the expiry clock of a session.
func (m *Manager) now(s *session) time.Time {
	if m.cfg.Capture.TimeSource == "packet" {
		if ns := s.newest.Load(); ns != 0 {
			return time.Unix(0, ns)
		}
	}
	return time.Now()
}
