package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	QoS       byte
	// Transient lists segments whose descendants are published without the
	// retain flag, so the broker does not keep them.
	Transient []string
}

// MQTTStore maps store paths onto retained MQTT topics. A retained message is
// the current value of a path, so a new subscriber receives existing values
// first, flagged as replay by the broker. Handlers run serially on a queue of
// their own, so they may subscribe and publish without stalling paho's router.
type MQTTStore struct {
	raw mqtt.Client
	qos byte
	// segments published without retain
	transient map[string]bool
	calls     *callQueue

	mu     sync.Mutex
	routes map[string]map[*mqttSub]struct{} // topic filter -> local subscribers
}

type mqttSub struct {
	store  *MQTTStore
	filter string
	base   string
	child  bool
	h      Handler
	onErr  ErrorHandler
	closed atomic.Bool

	seenMu sync.Mutex
	seen   map[string]struct{}
}

func NewMQTTStore(opts MQTTOptions) (*MQTTStore, error) {
	s := &MQTTStore{
		qos:       opts.QoS,
		transient: make(map[string]bool),
		routes:    make(map[string]map[*mqttSub]struct{}),
		calls:     newCallQueue(),
	}
	for _, seg := range opts.Transient {
		s.transient[seg] = true
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetAutoReconnect(true)
	o.SetOrderMatters(true)
	o.SetConnectionLostHandler(s.connectionLost)
	c := mqtt.NewClient(o)

	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		s.calls.close()
		return nil, fmt.Errorf("rtdb: connect %s: %w", opts.BrokerURL, token.Error())
	}
	s.raw = c
	log.Printf("[rtdb] connected to MQTT broker %s as %s", opts.BrokerURL, opts.ClientID)
	return s, nil
}

func (s *MQTTStore) connectionLost(_ mqtt.Client, err error) {
	log.Printf("[rtdb] MQTT connection lost: %v", err)
	s.mu.Lock()
	var subs []*mqttSub
	for _, set := range s.routes {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub := sub
		if sub.onErr != nil {
			s.calls.push(func() {
				if !sub.closed.Load() {
					sub.onErr(fmt.Errorf("rtdb: connection lost: %w", err))
				}
			})
		}
	}
}

func (s *MQTTStore) OnValue(path string, h Handler, onErr ErrorHandler) (Subscription, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	base := joinParts(parts)
	return s.subscribe(&mqttSub{store: s, filter: base, base: base, h: h, onErr: onErr})
}

func (s *MQTTStore) OnChildAdded(path string, h Handler, onErr ErrorHandler) (Subscription, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	base := joinParts(parts)
	return s.subscribe(&mqttSub{
		store: s, filter: base + "/#", base: base, child: true,
		h: h, onErr: onErr, seen: make(map[string]struct{}),
	})
}

func (s *MQTTStore) subscribe(sub *mqttSub) (Subscription, error) {
	if sub.h == nil {
		return nil, fmt.Errorf("rtdb: nil handler for %s", sub.base)
	}
	s.mu.Lock()
	set, ok := s.routes[sub.filter]
	if !ok {
		set = make(map[*mqttSub]struct{})
		s.routes[sub.filter] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	// Subscribing again makes the broker resend retained values, which is how
	// a second local subscriber to the same filter gets its replay.
	token := s.raw.Subscribe(sub.filter, s.qos, s.route(sub.filter))
	token.Wait()
	if err := token.Error(); err != nil {
		s.remove(sub)
		return nil, fmt.Errorf("rtdb: subscribe %s: %w", sub.filter, err)
	}
	return sub, nil
}

func (s *MQTTStore) route(filter string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		s.mu.Lock()
		subs := make([]*mqttSub, 0, len(s.routes[filter]))
		for sub := range s.routes[filter] {
			subs = append(subs, sub)
		}
		s.mu.Unlock()
		for _, sub := range subs {
			sub := sub
			s.calls.push(func() { sub.deliver(msg) })
		}
	}
}

func (sub *mqttSub) deliver(msg mqtt.Message) {
	if sub.closed.Load() || len(msg.Payload()) == 0 {
		return
	}
	topic := msg.Topic()
	if !sub.child {
		if topic != sub.base {
			return
		}
		sub.h(Snapshot{Path: topic, Key: lastSegment(topic), Value: json.RawMessage(msg.Payload()), Replay: msg.Retained()})
		return
	}

	rel := strings.TrimPrefix(topic, sub.base+"/")
	if rel == topic || rel == "" {
		return
	}
	key, _, deeper := strings.Cut(rel, "/")
	sub.seenMu.Lock()
	_, dup := sub.seen[key]
	sub.seen[key] = struct{}{}
	sub.seenMu.Unlock()
	if dup {
		return
	}
	snap := Snapshot{Path: joinPath(sub.base, key), Key: key, Replay: msg.Retained()}
	if !deeper {
		snap.Value = json.RawMessage(msg.Payload())
	}
	sub.h(snap)
}

func (sub *mqttSub) Unsubscribe() {
	if sub.closed.Swap(true) {
		return
	}
	sub.store.remove(sub)
}

func (s *MQTTStore) remove(sub *mqttSub) {
	s.mu.Lock()
	set := s.routes[sub.filter]
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(s.routes, sub.filter)
	}
	s.mu.Unlock()
	if last && s.raw.IsConnected() {
		token := s.raw.Unsubscribe(sub.filter)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("[rtdb] unsubscribe %s: %v", sub.filter, err)
		}
	}
}

func (s *MQTTStore) Set(ctx context.Context, path string, v interface{}) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rtdb: encode %s: %w", path, err)
	}
	token := s.raw.Publish(joinParts(parts), s.qos, s.retain(parts), raw)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("rtdb: publish %s: %w", path, err)
	}
	return nil
}

// retain reports whether a value at parts stays on the broker. Values below
// a transient segment are delivered to current subscribers only.
func (s *MQTTStore) retain(parts []string) bool {
	for _, p := range parts[:len(parts)-1] {
		if s.transient[p] {
			return false
		}
	}
	return true
}

func (s *MQTTStore) Push(ctx context.Context, path string, v interface{}) (string, error) {
	key := NewKey()
	if err := s.Set(ctx, joinPath(path, key), v); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MQTTStore) Close() error {
	s.raw.Disconnect(250)
	s.calls.close()
	return nil
}
