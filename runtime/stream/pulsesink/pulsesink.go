// Package pulsesink implements a runtime/stream.Sink that publishes events
// to goa.design/pulse streams over Redis, and a Subscriber that lets
// multiple independent readers fan out from the same stream (the HTTP
// surface's own SSE handler plus, e.g., an audit drain). Grounded on
// features/stream/pulse/clients/pulse.Client and features/stream/pulse's
// sink.go/subscriber.go, narrowed to the three event kinds
// runtime/stream defines and to a single envelope decoder.
package pulsesink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/apron-incident/runtime/stream"
)

type (
	// Client exposes the subset of Pulse operations this package needs,
	// narrowed so tests can substitute a fake instead of a live Redis
	// server.
	Client interface {
		Stream(name string, opts ...streamopts.Stream) (Stream, error)
		Close(ctx context.Context) error
	}

	// Stream publishes to and creates consumer groups on one Pulse stream.
	Stream interface {
		Add(ctx context.Context, event string, payload []byte) (string, error)
		NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (ConsumerSink, error)
		Destroy(ctx context.Context) error
	}

	// ConsumerSink is a Pulse consumer group: one independent reader
	// position over a stream.
	ConsumerSink interface {
		Subscribe() <-chan *streaming.Event
		Ack(context.Context, *streaming.Event) error
		Close(ctx context.Context)
	}
)

// client wraps a Redis connection with the Pulse streaming library.
type client struct {
	redis  *redis.Client
	maxLen int
}

// Options configures NewClient.
type Options struct {
	// Redis is the connection backing every Pulse stream. Required.
	Redis *redis.Client
	// StreamMaxLen bounds the number of entries Pulse retains per
	// stream. Zero uses the library default.
	StreamMaxLen int
}

// NewClient constructs a Pulse Client over a Redis connection.
func NewClient(opts Options) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("pulsesink: redis client is required")
	}
	return &client{redis: opts.Redis, maxLen: opts.StreamMaxLen}, nil
}

func (c *client) Stream(name string, opts ...streamopts.Stream) (Stream, error) {
	if name == "" {
		return nil, errors.New("pulsesink: stream name is required")
	}
	var streamOptions []streamopts.Stream
	if c.maxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(c.maxLen))
	}
	streamOptions = append(streamOptions, opts...)
	str, err := streaming.NewStream(name, c.redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("pulsesink: create stream: %w", err)
	}
	return &handle{stream: str}, nil
}

func (c *client) Close(ctx context.Context) error { return nil }

type handle struct {
	stream *streaming.Stream
}

func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	id, err := h.stream.Add(ctx, event, payload)
	if err != nil {
		return "", fmt.Errorf("pulsesink: add: %w", err)
	}
	return id, nil
}

func (h *handle) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (ConsumerSink, error) {
	sink, err := h.stream.NewSink(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return &sinkAdapter{Sink: sink}, nil
}

func (h *handle) Destroy(ctx context.Context) error { return h.stream.Destroy(ctx) }

type sinkAdapter struct{ *streaming.Sink }

func (s sinkAdapter) Close(ctx context.Context) { s.Sink.Close(ctx) }

// Envelope is the wire format stored in each Pulse stream entry.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// streamID derives the Pulse stream name from a session ID.
func streamID(sessionID string) string {
	return fmt.Sprintf("session/%s", sessionID)
}

// Sink publishes runtime/stream events onto per-session Pulse streams. It
// implements stream.Sink.
type Sink struct {
	client Client
	now    func() time.Time
}

// NewSink constructs a Pulse-backed stream.Sink.
func NewSink(c Client) *Sink {
	return &Sink{client: c, now: time.Now}
}

// Send implements stream.Sink.
func (s *Sink) Send(ctx context.Context, event stream.Event) error {
	str, err := s.client.Stream(streamID(event.SessionID()))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      string(event.Type()),
		SessionID: event.SessionID(),
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = str.Add(ctx, env.Type, raw)
	return err
}

// Close implements stream.Sink.
func (s *Sink) Close(ctx context.Context) error { return s.client.Close(ctx) }

// decodedEvent implements stream.Event for envelopes read back off a Pulse
// stream: the payload is left as the raw JSON the sink stored, since
// decoding into a concrete NodeUpdatePayload/CompletePayload/ErrorPayload
// is the subscriber's caller's job once it branches on Type.
type decodedEvent struct {
	t stream.EventType
	s string
	p json.RawMessage
}

func (e decodedEvent) Type() stream.EventType { return e.t }
func (e decodedEvent) SessionID() string      { return e.s }
func (e decodedEvent) Payload() any           { return e.p }

// Subscriber reads events back off Pulse streams through independent
// consumer groups, so several readers (an SSE handler, an audit drain)
// can each progress through the same session stream at their own pace.
type Subscriber struct {
	client Client
	name   string
	buffer int
}

// SubscriberOptions configures NewSubscriber.
type SubscriberOptions struct {
	// Client is the Pulse client events are read from. Required.
	Client Client
	// ConsumerName identifies this subscriber's consumer group. Defaults
	// to "apron_incident_subscriber".
	ConsumerName string
	// Buffer sizes the returned event channel. Defaults to 64.
	Buffer int
}

// NewSubscriber constructs a Pulse-backed Subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulsesink: client is required")
	}
	name := opts.ConsumerName
	if name == "" {
		name = "apron_incident_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscriber{client: opts.Client, name: name, buffer: buffer}, nil
}

// Subscribe opens a consumer group on the session's stream and returns a
// channel of decoded events plus a cancel function that stops consumption
// and closes the consumer group. The caller must call cancel to release
// resources, including when draining events exits early.
func (s *Subscriber) Subscribe(ctx context.Context, sessionID string) (<-chan stream.Event, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID(sessionID))
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan stream.Event, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go consume(runCtx, sink, events, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return events, errs, cancelFunc, nil
}

func consume(ctx context.Context, sink ConsumerSink, out chan<- stream.Event, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := decodeEnvelope(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulsesink: decode: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("pulsesink: ack: %w", err)
				return
			}
		}
	}
}

func decodeEnvelope(raw []byte) (stream.Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return decodedEvent{t: stream.EventType(env.Type), s: env.SessionID, p: env.Payload}, nil
}
