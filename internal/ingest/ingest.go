// FilePath: server/weatherhub/internal/ingest/ingest.go
package ingest

import (
	"context"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// Events emitted once per processed message. The first argument of each
// event is the message topic.
const (
	EventStored    = "packet.stored"
	EventDuplicate = "packet.duplicate"
	EventDropped   = "packet.dropped"
	EventFailed    = "packet.failed"
)

// Outcome is what happened to a single message.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeDuplicate
	OutcomeDropped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one delivery from the transport.
type Message struct {
	Topic   string
	Payload []byte
}

// Store is the write path ingestion needs.
type Store interface {
	Insert(ctx context.Context, packet *models.Packet, payload []byte, reading *models.SensorReading) (models.InsertResult, error)
}

// Pipeline turns transport messages into idempotent store writes.
type Pipeline struct {
	store  Store
	events *nuts.EventEmitter
	now    func() time.Time
}

// New creates a Pipeline writing to store.
func New(store Store) *Pipeline {
	return &Pipeline{
		store:  store,
		events: nuts.NewEventEmitter(),
		now:    time.Now,
	}
}

// OnEvent registers a handler for one of the packet events.
func (p *Pipeline) OnEvent(event string, handlerID string, handler func(topic string)) {
	p.events.On(event, handlerID, func(args ...interface{}) {
		if len(args) > 0 {
			if topic, ok := args[0].(string); ok {
				handler(topic)
			}
		}
	})
}

// Ingest processes one message. It never returns an error: malformed
// messages are dropped and storage failures are logged so the caller's
// receive loop keeps going.
func (p *Pipeline) Ingest(ctx context.Context, msg Message) Outcome {
	env, err := ParseEnvelope(msg.Payload, p.now())
	if err != nil {
		malformed := errors.NewMalformedInputError("malformed envelope", err)
		nuts.L.Warnf("[Ingest] Dropping message on %s (%d bytes): %v", msg.Topic, len(msg.Payload), malformed.Unwrap())
		p.events.Emit(EventDropped, msg.Topic)
		return OutcomeDropped
	}
	if env.TimestampDefaulted {
		nuts.L.Debugf("[Ingest] Message on %s has no timestamp, using ingestion time", msg.Topic)
	}

	result, err := p.store.Insert(ctx, &env.Packet, msg.Payload, env.Reading)
	if err != nil {
		nuts.L.Errorf("[Ingest] Failed to store message on %s: %v", msg.Topic, err)
		p.events.Emit(EventFailed, msg.Topic)
		return OutcomeFailed
	}

	if result.Duplicate {
		nuts.L.Debugf("[Ingest] Duplicate of packet %d ignored", result.PacketID)
		p.events.Emit(EventDuplicate, msg.Topic)
		return OutcomeDuplicate
	}

	nuts.L.Debugf("[Ingest] Stored packet %d (error=%t, reading=%t)", result.PacketID, env.Packet.Error, result.SensorCreated)
	p.events.Emit(EventStored, msg.Topic)
	return OutcomeStored
}

// Run ingests messages in delivery order until ctx is done or messages
// is closed.
func (p *Pipeline) Run(ctx context.Context, messages <-chan Message) error {
	nuts.L.Infof("[Ingest] Pipeline started")
	defer nuts.L.Infof("[Ingest] Pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			p.Ingest(ctx, msg)
		}
	}
}
