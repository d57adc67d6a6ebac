// Package messaging publishes driver view changes to MQTT or Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/viewfeed"
)

const (
	BackendNone  = "none"
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"

	DefaultTopic = "dispatch/driver-views"
)

// Options selects and configures a publisher.
type Options struct {
	Backend string
	Topic   string

	MQTTBroker   string
	MQTTClientID string

	KafkaBrokers []string

	// PublishTimeout bounds one publish when the caller's context has no deadline.
	PublishTimeout time.Duration
}

// Open returns the publisher named by opts.Backend. BackendNone (or empty) yields nil.
func Open(opts Options) (viewfeed.Publisher, error) {
	if strings.TrimSpace(opts.Topic) == "" {
		opts.Topic = DefaultTopic
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendMQTT:
		p, err := DialMQTT(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendKafka:
		p, err := NewKafkaPublisher(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown feed backend: %s", opts.Backend)
	}
}

// Encode renders the wire payload for an event.
func Encode(e viewfeed.Event) ([]byte, error) {
	e.At = e.At.UTC()
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode view event: %w", err)
	}
	return b, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
