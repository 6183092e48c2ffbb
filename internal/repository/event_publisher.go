package repository

import (
	"context"
	"errors"
	"sync"

	"sidbot/internal/domain/models"
	domrepo "sidbot/internal/domain/repository"
	pkgkafka "sidbot/pkg/kafka"
)

// KafkaEventPublisher writes lifecycle events keyed by symbol, so one symbol's events stay
// ordered within a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// FanoutPublisher delivers each event to every sink and joins their errors.
type FanoutPublisher struct {
	sinks []domrepo.EventPublisher
}

func NewFanoutPublisher(sinks ...domrepo.EventPublisher) *FanoutPublisher {
	out := make([]domrepo.EventPublisher, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &FanoutPublisher{sinks: out}
}

func (p *FanoutPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *FanoutPublisher) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.SignalEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []models.SignalEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SignalEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Types lists the event types in publish order.
func (p *RecordingPublisher) Types() []models.EventType {
	evs := p.Events()
	out := make([]models.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = (*FanoutPublisher)(nil)
	_ domrepo.EventPublisher = NoopPublisher{}
	_ domrepo.EventPublisher = (*RecordingPublisher)(nil)
)
