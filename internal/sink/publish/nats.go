package publish

import (
	"fmt"

	"FlowGuard/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATSPublisher publishes event batches to a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("flowguard"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.WithField("url", url).Info("Connected to NATS server")
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Name identifies the publisher in logs.
func (p *NATSPublisher) Name() string { return "nats" }

// Publish serializes the batch to JSON and publishes it.
func (p *NATSPublisher) Publish(batch model.Batch) error {
	data, err := Encode(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	log.Info("NATS connection drained and closed")
	return nil
}

// BatchHandler processes a received batch.
type BatchHandler func(batch model.Batch)

// Subscriber consumes event batches from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the NATS server at url.
func NewSubscriber(url, subject string) (*Subscriber, error) {
	nc, err := nats.Connect(url, nats.Name("flowguard-tail"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.WithField("url", url).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: subject}, nil
}

// Start subscribes and hands every decoded batch to handler.
func (s *Subscriber) Start(handler BatchHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		batch, err := Decode(msg.Data)
		if err != nil {
			log.WithError(err).Warn("Failed to decode event batch")
			return
		}
		handler(batch)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	log.WithField("subject", s.subject).Info("Subscribed, waiting for events")
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
