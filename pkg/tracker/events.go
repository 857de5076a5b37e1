package tracker

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/pkg/identity"
)

// Bus topics. Handlers must match the listed signatures.
const (
	// TopicRequestStarted: func(op string)
	TopicRequestStarted = "tracker:request_started"
	// TopicRequestFinished: func(op string, success bool, errMsg string)
	TopicRequestFinished = "tracker:request_finished"
	// TopicEmailSubmitted: func(status identity.SubmissionStatus)
	TopicEmailSubmitted = "tracker:email_submitted"
)

// Operation names published on the bus.
const (
	OpSubmitEmail = "submit_email"
	OpTrackEvent  = "track_event"
)

var topicSignatures = map[string]reflect.Type{
	TopicRequestStarted:  reflect.TypeOf(func(string) {}),
	TopicRequestFinished: reflect.TypeOf(func(string, bool, string) {}),
	TopicEmailSubmitted:  reflect.TypeOf(func(identity.SubmissionStatus) {}),
}

// notifier delivers outcome notifications to the client's subscribers.
// Handlers run on the publishing goroutine after the registry lock is
// released, so they may call back into the client.
type notifier struct {
	mu       sync.RWMutex
	handlers map[string][]reflect.Value
	// external mirrors every notification onto a shared bus.
	external evbus.Bus
}

func newNotifier(external evbus.Bus) *notifier {
	return &notifier{handlers: make(map[string][]reflect.Value), external: external}
}

func (n *notifier) subscribe(topic string, fn any) error {
	want, ok := topicSignatures[topic]
	if !ok {
		return errors.New(errors.KindValidation, "tracker.subscribe", fmt.Sprintf("unknown topic %q", topic))
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Type() != want {
		return errors.New(errors.KindValidation, "tracker.subscribe", fmt.Sprintf("%s handler must be %s", topic, want))
	}

	n.mu.Lock()
	n.handlers[topic] = append(n.handlers[topic], v)
	n.mu.Unlock()
	return nil
}

// unsubscribe removes the first handler with the same function pointer,
// the comparison EventBus uses.
func (n *notifier) unsubscribe(topic string, fn any) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return errors.New(errors.KindValidation, "tracker.unsubscribe", "handler must be a function")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	list := n.handlers[topic]
	for i, h := range list {
		if h.Type() == v.Type() && h.Pointer() == v.Pointer() {
			next := make([]reflect.Value, 0, len(list)-1)
			next = append(next, list[:i]...)
			n.handlers[topic] = append(next, list[i+1:]...)
			return nil
		}
	}
	return errors.New(errors.KindValidation, "tracker.unsubscribe", fmt.Sprintf("no such handler for %s", topic))
}

func (n *notifier) publish(topic string, args ...any) {
	n.mu.RLock()
	handlers := n.handlers[topic]
	n.mu.RUnlock()

	if len(handlers) > 0 {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = reflect.ValueOf(a)
		}
		for _, h := range handlers {
			h.Call(in)
		}
	}
	if n.external != nil {
		n.external.Publish(topic, args...)
	}
}

// Subscribe registers fn for topic. fn must match the signature listed with
// the topic. Handlers run synchronously on the goroutine of the operation
// that publishes; they may call the client, including Subscribe and
// Unsubscribe. A handler added while a notification is being delivered sees
// the next one.
func (c *Client) Subscribe(topic string, fn any) error {
	return c.notify.subscribe(topic, fn)
}

// Unsubscribe removes a handler registered with Subscribe.
func (c *Client) Unsubscribe(topic string, fn any) error {
	return c.notify.unsubscribe(topic, fn)
}

// State mirrors the loading, error and submitted flags a UI binding needs.
type State struct {
	mu        sync.RWMutex
	inFlight  int
	lastError string
	submitted identity.SubmissionStatus
}

// StateSnapshot is a point-in-time copy of State.
type StateSnapshot struct {
	Loading    bool
	Error      string
	Submission identity.SubmissionStatus
}

// NewState subscribes a State to c and seeds it from local storage.
func NewState(ctx context.Context, c *Client) (*State, error) {
	s := &State{submitted: c.HasSubmittedEmail(ctx)}
	if err := c.Subscribe(TopicRequestStarted, s.onStarted); err != nil {
		return nil, err
	}
	if err := c.Subscribe(TopicRequestFinished, s.onFinished); err != nil {
		return nil, err
	}
	if err := c.Subscribe(TopicEmailSubmitted, s.onSubmitted); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) onStarted(string) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *State) onFinished(_ string, success bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	if success {
		s.lastError = ""
	} else {
		s.lastError = errMsg
	}
}

func (s *State) onSubmitted(status identity.SubmissionStatus) {
	s.mu.Lock()
	s.submitted = status
	s.mu.Unlock()
}

func (s *State) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Loading:    s.inFlight > 0,
		Error:      s.lastError,
		Submission: s.submitted,
	}
}
