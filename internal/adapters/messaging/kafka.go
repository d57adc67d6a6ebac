package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/viewfeed"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by driver id so one driver's changes stay ordered
// within a partition.
type KafkaPublisher struct {
	mu      sync.RWMutex
	w       messageWriter
	timeout time.Duration
}

var _ viewfeed.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(opts Options) (*KafkaPublisher, error) {
	if len(opts.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(opts.KafkaBrokers...),
		Topic:        opts.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newKafkaPublisher(w, opts.PublishTimeout), nil
}

func newKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{w: w, timeout: timeout}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e viewfeed.Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.w == nil {
		return ErrNotConnected
	}

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafkago.Message{
		Key:   []byte(e.DriverID),
		Value: payload,
		Time:  e.At.UTC(),
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(e.Reason)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	return err
}
