// Package broker runs embedded MQTT server which publishes session slot values to
// topics 'lchat/session/<slot>'. Messages are retained, so a new subscriber gets the latest values at once
package broker

import (
	"encoding/json"
	"fmt"

	"github.com/lunfardo314/ledgerchat/api"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/views"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

type (
	environment interface {
		global.Logging
	}

	Broker struct {
		*mqtt.Server
		environment
	}

	ConfigOptions struct {
		TCPAddress string
		WSAddress  string
	}

	ConfigOption func(o *ConfigOptions)
)

const TraceTag = "broker"

func WithTCP(addr string) ConfigOption {
	return func(o *ConfigOptions) {
		o.TCPAddress = addr
	}
}

func WithWebsocket(addr string) ConfigOption {
	return func(o *ConfigOptions) {
		o.WSAddress = addr
	}
}

func Topic(slot session.Slot) string {
	return api.TopicPrefix + string(slot)
}

// New creates the broker with listeners and hooks it to the session. Serving starts with Start
func New(env environment, cache *session.Cache, engine *views.Engine, opts ...ConfigOption) (*Broker, error) {
	cfg := ConfigOptions{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ret := &Broker{
		Server: mqtt.New(&mqtt.Options{
			// the broker publishes messages itself
			InlineClient: true,
		}),
		environment: env,
	}
	if err := ret.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}
	if cfg.TCPAddress != "" {
		if err := ret.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp1", Address: cfg.TCPAddress})); err != nil {
			return nil, fmt.Errorf("adding tcp listener failed: %w", err)
		}
	}
	if cfg.WSAddress != "" {
		if err := ret.AddListener(listeners.NewWebsocket(listeners.Config{ID: "ws1", Address: cfg.WSAddress})); err != nil {
			return nil, fmt.Errorf("adding websocket listener failed: %w", err)
		}
	}
	for _, ev := range api.CurrentSlotEvents(cache, engine) {
		ret.publish(ev)
	}
	api.ListenSlotEvents(cache, engine, ret.publish)
	return ret, nil
}

func (b *Broker) publish(ev api.SlotEvent) {
	data, err := json.Marshal(ev.Value)
	if err != nil {
		b.environment.Log().Errorf("[broker] can't marshal slot '%s': %v", ev.Slot, err)
		return
	}
	if err = b.Publish(Topic(ev.Slot), data, true, 0); err != nil {
		b.environment.Log().Warnf("[broker] publish to %s failed: %v", Topic(ev.Slot), err)
		return
	}
	b.Tracef(TraceTag, "published %s: %d bytes", Topic(ev.Slot), len(data))
}

// Start serves the listeners in the background until the context is canceled
func (b *Broker) Start(env global.StartStop) {
	go func() {
		if err := b.Serve(); err != nil {
			b.environment.Log().Errorf("[broker] MQTT server error: %v", err)
		}
	}()
	b.Infof0("[broker] MQTT server started")
	go func() {
		<-env.Ctx().Done()
		_ = b.Close()
		b.Infof0("[broker] MQTT server stopped")
	}()
}

// SubscribeSlot calls fun with each value published for the slot. Used by inline consumers and tests
func (b *Broker) SubscribeSlot(slot session.Slot, subscriptionID int, fun func(payload []byte)) error {
	return b.Subscribe(Topic(slot), subscriptionID, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		fun(pk.Payload)
	})
}
