package bus

import (
	"reflect"

	"github.com/cskr/pubsub"

	"github.com/dougsko/smyd/pkg/logging"
)

// Topics published by the daemon.
const (
	TopicHop    = "hop"    // hopper.Event per scheduler action
	TopicState  = "state"  // device.State per poll round
	TopicStatus = "status" // connection and session changes
)

type Subscription chan interface{}

// MessageBus decouples the hopping scheduler and poller from the WebSocket
// fanout and the event store.
type MessageBus interface {
	Publish(topic string, msg interface{})
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps *pubsub.PubSub
}

// New creates a bus with a per-subscriber buffer large enough that a stalled
// WebSocket client does not back-pressure the hopping loop.
func New() *PubSubBus {
	return &PubSubBus{ps: pubsub.New(128)}
}

func (b *PubSubBus) Publish(topic string, msg interface{}) {
	logging.Debugf("bus", "publish %s (%s)", topic, payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	logging.Debugf("bus", "subscribe %s", topic)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		return
	}
	b.ps.Unsub(ch, topics...)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
