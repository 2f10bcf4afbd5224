// FilePath: server/weatherhub/internal/transport/broker.go
package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/ingest"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	nuts "github.com/vaudience/go-nuts"
)

// Broker is the embedded MQTT broker stations publish envelopes to.
// Publishes on the envelope topic are handed to Messages in arrival
// order.
type Broker struct {
	server    *mqtt.Server
	topic     string
	messages  chan ingest.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates the broker and its TCP listener. It does not start
// accepting connections until Serve.
func NewBroker(cfg config.MQTTConfig) (*Broker, error) {
	b := &Broker{
		server:   mqtt.New(nil),
		topic:    cfg.Topic(),
		messages: make(chan ingest.Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	if err := b.addAuthHook(cfg); err != nil {
		return nil, err
	}

	hook := &IngestHook{topic: b.topic, out: b.messages, done: b.done}
	if err := b.server.AddHook(hook, nil); err != nil {
		return nil, fmt.Errorf("failed to add ingest hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "weatherhub-tcp",
		Address: cfg.Address,
	})
	if err := b.server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("failed to add TCP listener: %w", err)
	}
	return b, nil
}

// addAuthHook requires the configured credentials, or allows every
// client when none are configured.
func (b *Broker) addAuthHook(cfg config.MQTTConfig) error {
	if cfg.Username == "" {
		if err := b.server.AddHook(new(auth.AllowHook), nil); err != nil {
			return fmt.Errorf("failed to add auth hook: %w", err)
		}
		return nil
	}

	ledger := &auth.Ledger{
		Auth: auth.AuthRules{
			{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true},
		},
	}
	if err := b.server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
		return fmt.Errorf("failed to add auth hook: %w", err)
	}
	return nil
}

// Topic returns the topic envelopes are taken from.
func (b *Broker) Topic() string {
	return b.topic
}

// Messages delivers envelope publishes. It is never closed; consumers
// stop on their own context.
func (b *Broker) Messages() <-chan ingest.Message {
	return b.messages
}

// Serve starts the listeners and blocks until ctx is done, then closes
// the broker.
func (b *Broker) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.server.Serve()
	}()

	nuts.L.Infof("[Broker] Accepting envelopes on topic %s", b.topic)

	select {
	case err := <-errCh:
		if err != nil {
			b.Close()
			return fmt.Errorf("mqtt server failed: %w", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}
	return b.Close()
}

// Close stops the broker and releases any publisher blocked on a full
// queue.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.server.Close()
		nuts.L.Infof("[Broker] Stopped")
	})
	return err
}

// IngestHook forwards publishes on one topic to a channel.
type IngestHook struct {
	mqtt.HookBase
	topic string
	out   chan<- ingest.Message
	done  <-chan struct{}
}

func (h *IngestHook) ID() string {
	return "weatherhub-ingest"
}

func (h *IngestHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnDisconnect,
		mqtt.OnPublish,
	}, []byte{b})
}

func (h *IngestHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	nuts.L.Infof("[Broker] Client connected: %s", cl.ID)
	return nil
}

func (h *IngestHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if err != nil {
		nuts.L.Warnf("[Broker] Client %s disconnected: %v", cl.ID, err)
		return
	}
	nuts.L.Infof("[Broker] Client disconnected: %s", cl.ID)
}

// OnPublish queues envelope publishes. A full queue blocks the publishing
// client rather than dropping the message.
func (h *IngestHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if pk.TopicName != h.topic {
		return pk, nil
	}

	payload := make([]byte, len(pk.Payload))
	copy(payload, pk.Payload)

	select {
	case h.out <- ingest.Message{Topic: pk.TopicName, Payload: payload}:
	case <-h.done:
		nuts.L.Warnf("[Broker] Dropping publish on %s during shutdown", pk.TopicName)
	}
	return pk, nil
}
