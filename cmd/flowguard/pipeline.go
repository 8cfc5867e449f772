package main

import (
	"context"
	"fmt"
	"io"

	"FlowGuard/internal/capture"
	"FlowGuard/internal/classifier"
	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/manager"
	"FlowGuard/internal/logging"
	"FlowGuard/internal/metrics"
	"FlowGuard/internal/sink"
	"FlowGuard/internal/sink/publish"
	"FlowGuard/internal/sink/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// loadConfig reads the file named by --config and configures logging.
func loadConfig(c *cli.Context) (*config.Config, io.Closer, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

// pipeline is the assembled capture, classification and sink stack.
type pipeline struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	adapter    *classifier.Adapter
	store      store.Store
	hub        *publish.Hub
	publishers []sink.Publisher
	dispatcher *sink.Dispatcher
	manager    *manager.Manager
}

func newPipeline(cfg *config.Config, opener capture.Opener, extra ...sink.Publisher) (*pipeline, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	p := &pipeline{cfg: cfg, metrics: metrics.New(reg)}

	selector, err := classifier.NewSelector(cfg.Classifier)
	if err != nil {
		return nil, err
	}
	p.adapter, err = classifier.NewAdapter(cfg.Classifier, selector, p.metrics)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Sink.Persist)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	p.store = st

	p.hub = publish.NewHub(p.metrics)
	p.publishers = append(p.publishers, p.hub)
	if cfg.Sink.NATS.Enabled {
		np, err := publish.NewNATSPublisher(cfg.Sink.NATS.URL, cfg.Sink.NATS.Subject)
		if err != nil {
			p.close()
			return nil, err
		}
		p.publishers = append(p.publishers, np)
	}
	p.publishers = append(p.publishers, extra...)

	p.dispatcher = sink.New(cfg.Sink, p.store, p.metrics, p.publishers...)
	if p.store != nil {
		var names []string
		for _, v := range selector.Variants() {
			names = append(names, v.Name)
		}
		if err := p.dispatcher.LoadRecent(context.Background(), names); err != nil {
			log.WithError(err).Warn("Failed to reload recent events")
		}
	}
	p.dispatcher.Start()

	p.manager = manager.New(cfg, opener, p.adapter, p.dispatcher, p.metrics)
	return p, nil
}

// close stops capture first so the final flush reaches the sink, then
// releases the sink side.
func (p *pipeline) close() {
	if p.manager != nil {
		p.manager.Stop()
	}
	if p.dispatcher != nil {
		p.dispatcher.Stop()
	}
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			log.WithError(err).WithField("publisher", pub.Name()).Warn("Failed to close publisher")
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close event store")
		}
	}
	if p.adapter != nil {
		if err := p.adapter.Close(); err != nil {
			log.WithError(err).Warn("Failed to close classifier")
		}
	}
}
