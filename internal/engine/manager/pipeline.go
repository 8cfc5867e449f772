package manager

import (
	"context"
	"math/rand"
	"time"

	"FlowGuard/internal/classifier"
	"FlowGuard/internal/engine/features"
	"FlowGuard/internal/engine/flowtable"
	"FlowGuard/internal/engine/protocol"
	"FlowGuard/internal/model"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const dequeueTimeout = 200 * time.Millisecond

// produce moves packets from the source into the ingest queue. Live capture
// never blocks on the consumer; offline replay waits for room so a file is
// classified completely.
func (m *Manager) produce(s *session) {
	defer close(s.producerDone)
	wall := m.cfg.Capture.TimeSource != "packet"
	offline := s.source.Offline()
	for pkt := range s.source.Packets() {
		m.metrics.PacketsCaptured.Inc()
		ts := time.Now()
		if !wall {
			if md := pkt.Metadata(); md != nil && !md.Timestamp.IsZero() {
				ts = md.Timestamp
			}
		}
		it := item{pkt: pkt, ts: ts}
		if offline {
			if err := s.queue.EnqueueWait(s.abortCtx, it); err != nil {
				m.metrics.PacketsDropped.WithLabelValues("stop_timeout").Inc()
			}
			continue
		}
		if !s.queue.Enqueue(it) {
			m.metrics.PacketsDropped.WithLabelValues("queue_full").Inc()
		}
	}
	log.WithField("source", s.source.Name()).Debug("Capture source exhausted")
}

// consumer is the state owned by the single consumer goroutine.
type consumer struct {
	m   *Manager
	s   *session
	rng *rand.Rand

	// pending packets, all of them taken while variant was active
	variant string
	batch   []*model.PacketInfo
	times   []time.Time

	flowVariant string
}

// consume processes queued packets until the producer has finished and the
// queue is empty, or until the session is aborted.
func (m *Manager) consume(s *session) {
	defer close(s.consumerDone)
	c := &consumer{
		m:     m,
		s:     s,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		batch: make([]*model.PacketInfo, 0, m.cfg.Classifier.PacketBatchSize),
	}
	for {
		select {
		case <-s.abortCtx.Done():
			c.flushBatch()
			return
		default:
		}
		it, ok := s.queue.Dequeue(dequeueTimeout)
		if !ok {
			c.flushBatch()
			select {
			case <-s.producerDone:
				if s.queue.Len() == 0 {
					return
				}
			default:
			}
			continue
		}
		c.handle(it)
	}
}

func (c *consumer) handle(it item) {
	m, s := c.m, c.s
	if rate := m.cfg.Capture.SampleRate; rate < 1 && c.rng.Float64() >= rate {
		m.metrics.PacketsDropped.WithLabelValues("sampled").Inc()
		return
	}
	info, err := protocol.Parse(it.pkt)
	if err != nil {
		m.metrics.ParseErrors.Inc()
		log.WithError(err).Debug("Skipping undecodable packet")
		return
	}
	if ns := it.ts.UnixNano(); ns > s.newest.Load() {
		s.newest.Store(ns)
	}

	name, mode := m.adapter.Selector().ActiveVariant()
	if mode == model.ModePacket {
		if len(c.batch) > 0 && name != c.variant {
			c.flushBatch()
		}
		c.variant = name
		c.batch = append(c.batch, info)
		c.times = append(c.times, it.ts)
		if len(c.batch) >= m.cfg.Classifier.PacketBatchSize || s.queue.Len() == 0 {
			c.flushBatch()
		}
		return
	}
	c.flushBatch()
	if name != c.flowVariant {
		c.flowVariant = name
		s.flowVariant.Store(name)
	}
	c.track(info, it.ts)
}

// flushBatch classifies the pending packets with the variant that was active
// when they were taken.
func (c *consumer) flushBatch() {
	if len(c.batch) == 0 {
		return
	}
	b := c.m.adapter.Bundle(c.variant)
	rows := make([][]float64, len(c.batch))
	for i, p := range c.batch {
		rows[i] = features.PacketFeatures(p)
	}
	pred := c.m.classify(b, model.ModePacket, rows)

	events := make([]model.Event, len(c.batch))
	for i, p := range c.batch {
		events[i] = model.Event{
			ID:         uuid.NewString(),
			Time:       c.times[i],
			Model:      c.variant,
			SrcIP:      p.FiveTuple.SrcIP.String(),
			DstIP:      p.FiveTuple.DstIP.String(),
			SrcPort:    p.FiveTuple.SrcPort,
			DstPort:    p.FiveTuple.DstPort,
			Proto:      model.ProtoLabel(p.FiveTuple.Protocol),
			Prediction: pred.Labels[i],
			Confidence: pred.Confidences[i],
			Features:   rows[i],
			Packet: &model.PacketMeta{
				TTL:        p.TTL,
				PktLen:     p.Length,
				Seq:        p.Seq,
				Ack:        p.Ack,
				Window:     p.Window,
				Flags:      p.Flags.String(),
				HeaderLen:  p.TCPHeaderLen,
				PayloadLen: p.PayloadLen,
			},
		}
	}
	c.m.emit(events)
	c.batch = c.batch[:0]
	c.times = c.times[:0]
}

// track folds a packet into its flow and triggers capacity and threshold
// flushes.
func (c *consumer) track(info *model.PacketInfo, ts time.Time) {
	m, s := c.m, c.s
	key, ok := flowtable.KeyOf(info.FiveTuple)
	if !ok {
		m.metrics.ParseErrors.Inc()
		return
	}

	if s.capacityFlushing.CompareAndSwap(false, true) {
		if victims := s.table.CapacityVictims(); len(victims) > 0 {
			s.flushWg.Add(1)
			go func() {
				defer s.flushWg.Done()
				defer s.capacityFlushing.Store(false)
				m.flush(s, victims, "capacity")
			}()
		} else {
			s.capacityFlushing.Store(false)
		}
	}

	var f *flowtable.Flow
	for {
		f, _ = s.table.GetOrCreate(key, info, ts)
		if f.Update(info, ts) {
			break
		}
	}

	if f.Packets() >= m.cfg.Flow.PacketThreshold {
		select {
		case s.flushSem <- struct{}{}:
			s.flushWg.Add(1)
			go func() {
				defer s.flushWg.Done()
				defer func() { <-s.flushSem }()
				m.flush(s, []flowtable.Key{key}, "threshold")
			}()
		default:
			// the scanner picks oversized flows up on its next pass
			m.metrics.FlushesDeferred.Inc()
		}
	}
}

// flush evicts keys and emits one event per flow actually removed. Keys that
// another flush already took are skipped, so every flow is emitted once.
func (m *Manager) flush(s *session, keys []flowtable.Key, reason string) {
	if len(keys) == 0 {
		return
	}
	flows := s.table.Evict(keys)
	if len(flows) == 0 {
		return
	}
	m.metrics.FlowsEvicted.WithLabelValues(reason).Add(float64(len(flows)))

	b := m.flowBundle(s)
	snaps := make([]flowtable.Snapshot, len(flows))
	rows := make([][]float64, len(flows))
	for i, f := range flows {
		snaps[i] = f.Snapshot()
		rows[i] = features.FlowFeatures(snaps[i])
	}
	pred := m.classify(b, model.ModeFlow, rows)

	now := m.now(s)
	events := make([]model.Event, len(flows))
	for i, snap := range snaps {
		events[i] = model.Event{
			ID:         uuid.NewString(),
			Time:       now,
			Model:      m.variantName(s, b),
			SrcIP:      snap.ClientIP.String(),
			DstIP:      snap.ServerIP.String(),
			SrcPort:    snap.ClientPort,
			DstPort:    snap.ServerPort,
			Proto:      model.ProtoLabel(snap.Protocol),
			Prediction: pred.Labels[i],
			Confidence: pred.Confidences[i],
			Features:   rows[i],
			Flow:       snap.Summary(),
		}
	}
	m.emit(events)
	log.WithFields(log.Fields{
		"reason": reason,
		"flows":  len(events),
	}).Debug("Flushed flows")
}

// classify runs rows through b when its mode matches; rows built for the
// other mode after a concurrent switch are left unclassified.
func (m *Manager) classify(b *classifier.Bundle, mode model.Mode, rows [][]float64) classifier.Prediction {
	if b != nil && b.Mode != mode {
		b = nil
	}
	return m.adapter.Classify(context.Background(), b, rows)
}

// flowBundle picks the bundle for evicted flows: the active variant when it
// is flow based, otherwise the flow variant the table was last fed under.
func (m *Manager) flowBundle(s *session) *classifier.Bundle {
	name, mode := m.adapter.Selector().ActiveVariant()
	if mode == model.ModeFlow {
		return m.adapter.Bundle(name)
	}
	if v, ok := s.flowVariant.Load().(string); ok {
		return m.adapter.Bundle(v)
	}
	return nil
}

func (m *Manager) variantName(s *session, b *classifier.Bundle) string {
	if b != nil {
		return b.Name
	}
	if v, ok := s.flowVariant.Load().(string); ok {
		return v
	}
	return m.adapter.Selector().Active()
}

func (m *Manager) emit(events []model.Event) {
	for _, e := range events {
		m.sink.Push(e)
	}
	m.sink.Broadcast(events)
}
