package pulsesink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/apron-incident/runtime/stream"
)

// fakeClient/fakeStream/fakeConsumerSink stand in for a live Redis-backed
// Pulse deployment, mirroring how the teacher tests its own pulse sink
// against a generated mock client rather than a real server.
type fakeClient struct {
	streams map[string]*fakeStream
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: map[string]*fakeStream{}}
}

func (c *fakeClient) Stream(name string, _ ...streamopts.Stream) (Stream, error) {
	str, ok := c.streams[name]
	if !ok {
		str = &fakeStream{name: name}
		c.streams[name] = str
	}
	return str, nil
}

func (c *fakeClient) Close(ctx context.Context) error { return nil }

type fakeStream struct {
	name    string
	entries []fakeEntry
}

type fakeEntry struct {
	event   string
	payload []byte
}

func (s *fakeStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	s.entries = append(s.entries, fakeEntry{event: event, payload: payload})
	return "1-0", nil
}

func (s *fakeStream) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (ConsumerSink, error) {
	ch := make(chan *streaming.Event, len(s.entries))
	for i, e := range s.entries {
		ch <- &streaming.Event{ID: fmt.Sprintf("%d-0", i+1), EventName: e.event, Payload: e.payload}
	}
	close(ch)
	return &fakeConsumerSink{ch: ch}, nil
}

func (s *fakeStream) Destroy(ctx context.Context) error { return nil }

type fakeConsumerSink struct {
	ch     chan *streaming.Event
	acked  int
	closed bool
}

func (s *fakeConsumerSink) Subscribe() <-chan *streaming.Event { return s.ch }
func (s *fakeConsumerSink) Ack(ctx context.Context, evt *streaming.Event) error {
	s.acked++
	return nil
}
func (s *fakeConsumerSink) Close(ctx context.Context) { s.closed = true }

func TestSendPublishesEnvelopeOnSessionStream(t *testing.T) {
	cli := newFakeClient()
	sink := NewSink(cli)

	err := sink.Send(context.Background(), testEvent{t: stream.EventNodeUpdate, id: "s1", payload: map[string]string{"node": "reasoning"}})
	require.NoError(t, err)

	str := cli.streams["session/s1"]
	require.NotNil(t, str)
	require.Len(t, str.entries, 1)
	assert.Equal(t, string(stream.EventNodeUpdate), str.entries[0].event)

	var env Envelope
	require.NoError(t, json.Unmarshal(str.entries[0].payload, &env))
	assert.Equal(t, "s1", env.SessionID)
}

func TestSubscribeDecodesPublishedEvents(t *testing.T) {
	cli := newFakeClient()
	sink := NewSink(cli)
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, testEvent{t: stream.EventComplete, id: "s2", payload: map[string]string{"final_answer": "done"}}))

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(ctx, "s2")
	require.NoError(t, err)
	defer cancel()

	select {
	case ev := <-events:
		assert.Equal(t, stream.EventComplete, ev.Type())
		assert.Equal(t, "s2", ev.SessionID())
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

type testEvent struct {
	t       stream.EventType
	id      string
	payload any
}

func (e testEvent) Type() stream.EventType { return e.t }
func (e testEvent) SessionID() string      { return e.id }
func (e testEvent) Payload() any           { return e.payload }
