package appliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"appliancebridge/internal/infrastructure/config"
	"appliancebridge/internal/infrastructure/logging"
	"appliancebridge/internal/infrastructure/mqtt"
)

// updateQueueSize bounds the state payloads pending between the MQTT
// receive callback and the consumer goroutine. When full, the oldest
// pending payload is dropped: snapshot semantics are last-write-wins, so
// the newest document must always be able to land.
const updateQueueSize = 64

// Channel is the publish/subscribe transport the relay speaks through.
// *mqtt.Client satisfies it; tests inject fakes.
type Channel interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	Close() error
}

// DialFunc opens a connection to the broker.
type DialFunc func() (Channel, error)

// commandMessage is the wire format published on the control topic.
// The shared secret travels inside the payload; the board firmware
// re-checks it before driving any pin. This is the contract the board
// expects, not a design strength.
type commandMessage struct {
	Password string            `json:"password"`
	Pins     map[string]string `json:"pins"`
}

// Relay bridges HTTP requests onto the appliance control channel and
// tracks the board's last reported state.
//
// The relay is stateless across requests apart from two shared pieces:
// the lazily-dialed broker channel and the state snapshot. Issuing a
// command is fire-and-forget: the broker acknowledges the publish, the
// board never does, so a successful command only means the message was
// handed to the broker.
//
// Thread Safety: all methods are safe for concurrent use.
type Relay struct {
	cfg    config.ApplianceConfig
	qos    byte
	logger *logging.Logger

	dial DialFunc

	// channel is dialed on first demand and kept for the process
	// lifetime. mu serializes dialing; chanMu guards the channel
	// reference and is never held across a dial, so readers (GetState)
	// cannot stall behind a slow broker connect.
	mu      sync.Mutex
	chanMu  sync.RWMutex
	channel Channel

	snapshot *Snapshot
	updates  chan []byte

	observerMu sync.RWMutex
	observer   func(pins map[string]string)
}

// New creates a Relay that dials the configured MQTT broker on demand.
//
// The connection is not opened here; the first command (or an explicit
// Connect call at startup) triggers it. Start must be called to launch
// the state consumer before any state messages can be applied.
func New(cfg *config.Config, logger *logging.Logger) *Relay {
	r := &Relay{
		cfg:      cfg.Appliance,
		qos:      byte(cfg.MQTT.QoS),
		logger:   logger,
		snapshot: NewSnapshot(),
		updates:  make(chan []byte, updateQueueSize),
	}

	mqttCfg := cfg.MQTT
	r.dial = func() (Channel, error) {
		client, err := mqtt.Connect(mqttCfg)
		if err != nil {
			return nil, err
		}
		client.SetLogger(logger)
		client.SetOnConnect(func() {
			logger.Info("mqtt connected", "broker", fmt.Sprintf("%s:%d", mqttCfg.Broker.Host, mqttCfg.Broker.Port))
		})
		client.SetOnDisconnect(func(err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
		return client, nil
	}

	return r
}

// SetDial replaces the broker connector. Tests use this to inject a fake
// transport; it must be called before any command is submitted.
func (r *Relay) SetDial(dial DialFunc) {
	r.mu.Lock()
	r.dial = dial
	r.mu.Unlock()
}

// OnStateChange registers an observer invoked by the consumer goroutine
// after each applied state update, with a copy of the new mapping.
// Only one observer is supported; later calls replace earlier ones.
func (r *Relay) OnStateChange(fn func(pins map[string]string)) {
	r.observerMu.Lock()
	r.observer = fn
	r.observerMu.Unlock()
}

// Start launches the state consumer goroutine. It returns immediately;
// the consumer runs until ctx is cancelled.
//
// The consumer is the sole writer of the snapshot and the sole invoker
// of the state observer, so updates apply sequentially in arrival order.
func (r *Relay) Start(ctx context.Context) {
	go r.consumeUpdates(ctx)
}

// Connect eagerly dials the broker and subscribes to the state topic.
//
// Failure is not fatal to the service: commands dial again lazily. Main
// calls this at startup so the state subscription is live before the
// first command arrives.
func (r *Relay) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("appliance connect: %w", ctx.Err())
	default:
	}

	_, err := r.ensureChannel()
	return err
}

// Close disconnects from the broker. Safe to call if never connected.
func (r *Relay) Close() error {
	r.chanMu.Lock()
	ch := r.channel
	r.channel = nil
	r.chanMu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}

// ensureChannel returns the shared broker channel, dialing and
// subscribing to the state topic on first use. Idempotent; concurrent
// callers share one dial. A failed dial leaves no channel behind, so the
// next caller retries.
func (r *Relay) ensureChannel() (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chanMu.RLock()
	existing := r.channel
	r.chanMu.RUnlock()
	if existing != nil {
		return existing, nil
	}

	ch, err := r.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := ch.Subscribe(r.cfg.StateTopic, r.qos, r.enqueueState); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	r.chanMu.Lock()
	r.channel = ch
	r.chanMu.Unlock()

	r.logger.Info("subscribed to state topic", "topic", r.cfg.StateTopic)
	return ch, nil
}

// enqueueState hands a received state payload to the consumer goroutine.
// It runs on the MQTT client's receive goroutine and must not block.
func (r *Relay) enqueueState(_ string, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	for {
		select {
		case r.updates <- buf:
			return nil
		default:
		}

		// Queue full: discard the oldest pending payload and retry.
		select {
		case <-r.updates:
			r.logger.Warn("state queue full, dropping oldest payload")
		default:
		}
	}
}

// consumeUpdates applies queued state payloads sequentially.
func (r *Relay) consumeUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.updates:
			r.applyState(payload)
		}
	}
}

// applyState parses one state document and swaps it into the snapshot.
//
// A malformed payload is logged and discarded, leaving the previous
// snapshot untouched; it must never stop later valid messages from
// applying.
func (r *Relay) applyState(payload []byte) {
	var state map[string]string
	if err := json.Unmarshal(payload, &state); err != nil {
		r.logger.Warn("discarding malformed state payload", "error", err)
		return
	}

	r.snapshot.Replace(state)
	r.logger.Debug("state updated", "pins", len(state))

	r.observerMu.RLock()
	observer := r.observer
	r.observerMu.RUnlock()
	if observer != nil {
		observer(r.snapshot.Pins())
	}
}

// SubmitCommand validates and publishes a pin command.
//
// The secret is checked first (exact string comparison, the contract the
// board expects), then every pin name case-insensitively against the
// fixed d0..d8 set. On success the command, with the secret embedded in
// the payload, is published at the configured QoS, non-retained, and the
// sorted pin names included in the request are returned. Nothing is
// published on any validation failure.
//
// The return value says which pins were commanded, not that the board
// applied them; there is no acknowledgment channel.
func (r *Relay) SubmitCommand(ctx context.Context, pins map[string]string, secret string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("appliance command: %w", ctx.Err())
	default:
	}

	if secret != r.cfg.Password {
		return nil, ErrUnauthorized
	}

	names := make([]string, 0, len(pins))
	for name := range pins {
		if !ValidPin(name) {
			return nil, &InvalidPinError{Name: name}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	ch, err := r.ensureChannel()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(commandMessage{
		Password: secret,
		Pins:     pins,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	if err := ch.Publish(r.cfg.ControlTopic, payload, r.qos, false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	r.logger.Info("command published", "topic", r.cfg.ControlTopic, "pins", names)
	return names, nil
}

// Toggle flips a single pin based on its last reported state.
//
// A pin absent from the snapshot is assumed "off", so its first toggle
// turns it on. The read is of a possibly-stale snapshot: concurrent
// toggles on the same pin race and are not serialized against each
// other.
func (r *Relay) Toggle(ctx context.Context, pin, secret string) ([]string, error) {
	pin = strings.ToLower(pin)
	if !ValidPin(pin) {
		return nil, &InvalidPinError{Name: pin}
	}

	next := "on"
	if r.snapshot.Pin(pin) == "on" {
		next = "off"
	}

	return r.SubmitCommand(ctx, map[string]string{pin: next}, secret)
}

// SetAll commands every board pin to the same state.
// The state token must be one of on, off, high, low (case-insensitive).
func (r *Relay) SetAll(ctx context.Context, state, secret string) ([]string, error) {
	state = strings.ToLower(state)
	if !ValidStateToken(state) {
		return nil, &InvalidStateError{State: state}
	}

	pins := make(map[string]string, PinCount)
	for _, name := range Pins() {
		pins[name] = state
	}

	return r.SubmitCommand(ctx, pins, secret)
}

// GetState returns a copy of the last reported pin states and the
// current broker connectivity. It never blocks waiting for a fresher
// value and never dials: before any successful connection the flag is
// false and the mapping is empty.
func (r *Relay) GetState() (map[string]string, bool) {
	r.chanMu.RLock()
	ch := r.channel
	r.chanMu.RUnlock()

	connected := ch != nil && ch.IsConnected()
	return r.snapshot.Pins(), connected
}
