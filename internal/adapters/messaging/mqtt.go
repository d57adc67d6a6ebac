package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/viewfeed"
)

const mqttQoS = 1

var ErrNotConnected = errors.New("messaging: not connected")

// mqttConn is the part of mqtt.Client the publisher needs.
type mqttConn interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes each event to "<topic>/<driverId>", retained so a late
// subscriber sees the latest view.
type MQTTPublisher struct {
	mu      sync.RWMutex
	conn    mqttConn
	topic   string
	timeout time.Duration
}

var _ viewfeed.Publisher = (*MQTTPublisher)(nil)

// DialMQTT connects to opts.MQTTBroker, e.g. "tcp://localhost:1883".
func DialMQTT(opts Options) (*MQTTPublisher, error) {
	if strings.TrimSpace(opts.MQTTBroker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	clientID := opts.MQTTClientID
	if clientID == "" {
		clientID = "driverclient-" + uuid.NewString()[:8]
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(opts.PublishTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTPublisher(client, opts.Topic, opts.PublishTimeout), nil
}

func newMQTTPublisher(conn mqttConn, topic string, timeout time.Duration) *MQTTPublisher {
	return &MQTTPublisher{conn: conn, topic: strings.TrimRight(topic, "/"), timeout: timeout}
}

func (p *MQTTPublisher) Publish(ctx context.Context, e viewfeed.Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	token := conn.Publish(p.topic+"/"+e.DriverID, mqttQoS, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}

func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Disconnect(250)
		p.conn = nil
	}
	return nil
}
