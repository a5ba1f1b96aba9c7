// Package events gives the player its "subscribe to named channel,
// receive typed events" capability over MQTT. The wire protocol is the
// broker's business; the core only sees typed events and disposer
// handles. Handlers run on the paho callback goroutine, never
// concurrently with themselves.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Event types pushed by the CMS.
const (
	TypeScheduleUpdate = "schedule_update"
	TypeScreenDeleted  = "screen_deleted"
	TypeSlideControl   = "slide_control"
)

// Event is one message off a channel. Payload carries the raw document
// for handlers that need more than the type.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"-"`
}

// Handler receives events for one subscription.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Channel is a connection to the broker carrying any number of named
// subscriptions, restored automatically after a reconnect.
type Channel struct {
	client mqtt.Client

	mu          sync.Mutex
	nextID      int
	subs        map[string][]subscription
	onReconnect []func()
}

// DeviceTopic is the per-device command channel, mirroring the CMS's
// publishing scheme.
func DeviceTopic(deviceID string) string {
	return fmt.Sprintf("tv/%s/commands", deviceID)
}

// Connect dials the broker and returns a ready Channel. paho handles
// retries and reconnection; OnConnect re-establishes every
// subscription and then runs the registered reconnect hooks.
func Connect(brokerURL, clientID string) (*Channel, error) {
	ch := &Channel{subs: make(map[string][]subscription)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Str("broker", brokerURL).Msg("connected to event broker")
		ch.restore()
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("event broker connection lost")
	}

	ch.client = mqtt.NewClient(opts)
	if token := ch.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to event broker: %w", token.Error())
	}
	return ch, nil
}

// Subscribe attaches a handler to a named channel and returns a
// disposer that detaches it. The broker subscription is dropped once
// the last handler for the channel is disposed.
func (ch *Channel) Subscribe(topic string, handler Handler) (func(), error) {
	ch.mu.Lock()
	ch.nextID++
	id := ch.nextID
	first := len(ch.subs[topic]) == 0
	ch.subs[topic] = append(ch.subs[topic], subscription{id: id, handler: handler})
	ch.mu.Unlock()

	if first {
		if err := ch.subscribeBroker(topic); err != nil {
			ch.removeHandler(topic, id)
			return nil, err
		}
	}

	return func() {
		if ch.removeHandler(topic, id) {
			ch.client.Unsubscribe(topic)
		}
	}, nil
}

// OnReconnect registers a hook that runs after subscriptions are
// restored on every reconnect. Used to resync the clock and refresh
// the schedule after an outage.
func (ch *Channel) OnReconnect(fn func()) {
	ch.mu.Lock()
	ch.onReconnect = append(ch.onReconnect, fn)
	ch.mu.Unlock()
}

// Close disconnects from the broker.
func (ch *Channel) Close() {
	ch.client.Disconnect(250)
}

func (ch *Channel) subscribeBroker(topic string) error {
	token := ch.client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
		ch.dispatch(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	log.Debug().Str("topic", topic).Msg("subscribed to event channel")
	return nil
}

func (ch *Channel) dispatch(topic string, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		log.Warn().Str("topic", topic).Msg("dropping malformed event")
		return
	}
	ev.Payload = json.RawMessage(payload)

	ch.mu.Lock()
	subs := append([]subscription(nil), ch.subs[topic]...)
	ch.mu.Unlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

// removeHandler detaches one handler and reports whether the topic now
// has none left.
func (ch *Channel) removeHandler(topic string, id int) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	subs := ch.subs[topic]
	for i, s := range subs {
		if s.id == id {
			ch.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(ch.subs[topic]) == 0 {
		delete(ch.subs, topic)
		return true
	}
	return false
}

// restore re-subscribes every known topic after a (re)connect.
func (ch *Channel) restore() {
	ch.mu.Lock()
	topics := make([]string, 0, len(ch.subs))
	for topic := range ch.subs {
		topics = append(topics, topic)
	}
	hooks := append([]func(){}, ch.onReconnect...)
	ch.mu.Unlock()

	for _, topic := range topics {
		if err := ch.subscribeBroker(topic); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to restore subscription")
		}
	}
	for _, fn := range hooks {
		fn()
	}
}
