package sink

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches []model.Batch
}

func (p *recordingPublisher) Name() string { return "recording" }
func (p *recordingPublisher) Close() error { return nil }
func (p *recordingPublisher) Publish(b model.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return nil
}
func (p *recordingPublisher) snapshot() []model.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Batch(nil), p.batches...)
}

type memStore struct {
	mu     sync.Mutex
	writes [][]model.Event
	seed   []model.Event
}

func (s *memStore) Write(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]model.Event(nil), events...))
	return nil
}
func (s *memStore) Recent(_ context.Context, variant string, n int) ([]model.Event, error) {
	var out []model.Event
	for _, e := range s.seed {
		if e.Model == variant {
			out = append(out, e)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}
func (s *memStore) Close() error { return nil }
func (s *memStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.writes {
		n += len(w)
	}
	return n
}

func evt(i int, variant, label string) model.Event {
	e := model.Event{ID: fmt.Sprint(i), Model: variant, Time: time.Now()}
	if label != "" {
		e.Prediction = &label
	}
	return e
}

func sinkConfig() config.SinkConfig {
	return config.SinkConfig{
		QueueSize:         2000,
		RecentSize:        5,
		BroadcastInterval: 50 * time.Millisecond,
		BroadcastBatch:    10,
		Persist:           config.PersistConfig{BatchSize: 50, FlushInterval: 50 * time.Millisecond, QueueSize: 1000},
	}
}

func TestRecentAndStats(t *testing.T) {
	d := New(sinkConfig(), nil, nil)
	for i := 0; i < 8; i++ {
		label := "BENIGN"
		if i%4 == 0 {
			label = "DDoS"
		}
		d.Push(evt(i, "bcc", label))
	}
	d.Push(evt(100, "cicids", ""))

	recent := d.Recent("bcc", 10)
	require.Len(t, recent, 5)
	assert.Equal(t, "3", recent[0].ID)
	assert.Equal(t, "7", recent[4].ID)

	last2 := d.Recent("bcc", 2)
	assert.Equal(t, []string{"6", "7"}, []string{last2[0].ID, last2[1].ID})

	assert.Equal(t, map[string]int{"BENIGN": 6, "DDoS": 2}, d.Stats("bcc"))
	assert.Equal(t, map[string]int{"Unknown": 1}, d.Stats("cicids"))
	assert.Empty(t, d.Recent("other", 10))
}

func TestBroadcastBatchesBySize(t *testing.T) {
	cfg := sinkConfig()
	cfg.BroadcastInterval = time.Hour
	pub := &recordingPublisher{}
	d := New(cfg, nil, nil, pub)
	d.Start()

	events := make([]model.Event, 25)
	for i := range events {
		events[i] = evt(i, "bcc", "BENIGN")
	}
	d.Broadcast(events)

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	for _, b := range pub.snapshot() {
		assert.Equal(t, 10, b.Count)
		assert.Len(t, b.Items, 10)
	}

	d.Stop()
	batches := pub.snapshot()
	require.Len(t, batches, 3)
	assert.Equal(t, 5, batches[2].Count, "stop flushes the partial batch")
}

func TestBroadcastFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(sinkConfig(), nil, nil, pub)
	d.Start()
	defer d.Stop()

	d.Broadcast([]model.Event{evt(1, "bcc", "x"), evt(2, "bcc", "y")})
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, pub.snapshot()[0].Count)
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	cfg := sinkConfig()
	cfg.QueueSize = 3
	m := metrics.Discard()
	d := New(cfg, nil, m)

	start := time.Now()
	d.Broadcast([]model.Event{evt(1, "a", ""), evt(2, "a", ""), evt(3, "a", ""), evt(4, "a", ""), evt(5, "a", "")})
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("broadcast")))
}

func TestPersistBatching(t *testing.T) {
	st := &memStore{}
	m := metrics.Discard()
	d := New(sinkConfig(), st, m)
	d.Start()

	for i := 0; i < 120; i++ {
		d.Push(evt(i, "bcc", "BENIGN"))
	}
	require.Eventually(t, func() bool { return st.total() == 120 }, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	st.mu.Lock()
	for _, w := range st.writes {
		assert.LessOrEqual(t, len(w), 50)
	}
	st.mu.Unlock()
	assert.Equal(t, 120.0, testutil.ToFloat64(m.EventsPersisted))
	assert.Zero(t, testutil.ToFloat64(m.EventsDropped.WithLabelValues("persist")))
}

func TestStopFlushesPersistQueue(t *testing.T) {
	st := &memStore{}
	cfg := sinkConfig()
	cfg.Persist.FlushInterval = time.Hour
	d := New(cfg, st, nil)
	d.Start()
	for i := 0; i < 7; i++ {
		d.Push(evt(i, "bcc", "BENIGN"))
	}
	d.Stop()
	assert.Equal(t, 7, st.total())
}

func TestLoadRecent(t *testing.T) {
	st := &memStore{}
	for i := 0; i < 8; i++ {
		st.seed = append(st.seed, evt(i, "cicids", "BENIGN"))
	}
	d := New(sinkConfig(), st, nil)
	require.NoError(t, d.LoadRecent(context.Background(), []string{"bcc", "cicids"}))

	recent := d.Recent("cicids", 100)
	require.Len(t, recent, 5)
	assert.Equal(t, "7", recent[4].ID)
	assert.Equal(t, 5, d.Stats("cicids")["BENIGN"])
	assert.Empty(t, d.Recent("bcc", 10))
}
