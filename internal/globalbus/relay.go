package globalbus

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/messenger"
)

// DispatchMessageType is the messenger message type carrying relayed events.
// Peers must agree on this literal to interoperate.
const DispatchMessageType = "dispatch_global_bus_event_message"

// relayMessage is the JSON body of a DispatchMessageType message.
type relayMessage struct {
	EventName string `json:"eventName"`
	Payload   string `json:"payload"`
}

// encodeRelayMessage produces the body exactly as a browser's JSON.stringify
// would: no HTML escaping and no trailing newline.
func encodeRelayMessage(eventName, payload string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(relayMessage{EventName: eventName, Payload: payload}); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// decodeRelayMessage parses a relay body. An absent eventName is malformed;
// an empty one is a valid event name.
func decodeRelayMessage(body string) (relayMessage, error) {
	var raw struct {
		EventName *string `json:"eventName"`
		Payload   string  `json:"payload"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return relayMessage{}, err
	}
	if raw.EventName == nil {
		return relayMessage{}, errors.New("missing eventName")
	}
	return relayMessage{EventName: *raw.EventName, Payload: raw.Payload}, nil
}

// dispatchFunc re-enters the owning bus for an event relayed by originID.
type dispatchFunc func(eventName, payload, originID string)

type registration struct {
	messenger messenger.Messenger
	dispatch  dispatchFunc
}

// Relay fans dispatched events out to every connected messenger except the
// one an event arrived on, and feeds inbound relayed events back into the bus.
//
// Messengers are used as map keys, so implementations must be comparable;
// every transport in this module is a pointer type.
type Relay struct {
	dispatch dispatchFunc
	logger   Logger

	mu         sync.Mutex
	registered map[messenger.Messenger]*registration
	order      []messenger.Messenger
}

func newRelay(dispatch dispatchFunc, logger Logger) *Relay {
	return &Relay{
		dispatch:   dispatch,
		logger:     logger,
		registered: make(map[messenger.Messenger]*registration),
	}
}

// Connect registers m with the relay. Connecting an already registered
// messenger is a no-op.
func (r *Relay) Connect(m messenger.Messenger) error {
	if m == nil {
		return errors.ErrNilMessenger
	}
	id := m.ID()
	if id == "" {
		return errors.ErrMissingMessengerID
	}

	r.mu.Lock()
	if _, ok := r.registered[m]; ok {
		r.mu.Unlock()
		return nil
	}
	reg := &registration{messenger: m, dispatch: r.dispatch}
	r.registered[m] = reg
	r.order = append(r.order, m)
	r.mu.Unlock()

	m.AddOnShutdown(func() {
		r.disconnect(m)
	})
	m.AddMessageHandler(DispatchMessageType, func(body string) {
		r.receive(reg, body)
	})

	r.logger.Debug("messenger connected", "messenger_id", id)
	return nil
}

// receive handles one inbound relay message.
func (r *Relay) receive(reg *registration, body string) {
	r.mu.Lock()
	current := r.registered[reg.messenger]
	r.mu.Unlock()
	if current != reg {
		return
	}

	id := reg.messenger.ID()
	msg, err := decodeRelayMessage(body)
	if err != nil {
		relayErr := errors.NewRelayError("drop inbound message", errors.Join(errors.ErrMalformedRelayMessage, err)).
			WithMessengerID(id)
		r.logger.Warn("dropping malformed relay message", "messenger_id", id, "error", relayErr)
		return
	}
	reg.dispatch(msg.EventName, msg.Payload, id)
}

// Forward sends the event to every registered messenger, in connect order,
// except the one whose id equals originID. An empty originID marks a local
// dispatch and forwards to all. Send failures are logged and fan-out
// continues. Returns the number of messengers the event was handed to.
func (r *Relay) Forward(eventName, payload, originID string) int {
	targets := r.Messengers()
	if len(targets) == 0 {
		return 0
	}

	body, err := encodeRelayMessage(eventName, payload)
	if err != nil {
		r.logger.Error("failed to encode relay message", "event", eventName, "error", err)
		return 0
	}

	sent := 0
	for _, m := range targets {
		id := m.ID()
		if originID != "" && id == originID {
			continue
		}
		if err := m.SendMessage(DispatchMessageType, body); err != nil {
			relayErr := errors.NewRelayError("forward", err).WithMessengerID(id).WithEventName(eventName)
			r.logger.Warn("relay send failed", "messenger_id", id, "event", eventName, "error", relayErr)
			continue
		}
		sent++
	}
	return sent
}

// disconnect removes m. Removing an absent messenger is a no-op.
func (r *Relay) disconnect(m messenger.Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registered[m]; !ok {
		return
	}
	delete(r.registered, m)
	for i, candidate := range r.order {
		if candidate == m {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("messenger disconnected", "messenger_id", m.ID())
}

// Messengers returns the registered messengers in connect order.
func (r *Relay) Messengers() []messenger.Messenger {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]messenger.Messenger, len(r.order))
	copy(out, r.order)
	return out
}
