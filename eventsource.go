package cabintwin

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

const (
	// metadataEndOfStream marks the message that terminates a finite stream of
	// readings, such as the replay of a dataset.
	metadataEndOfStream = "eos"
	// metadataCount carries, on the end-of-stream marker, the number of events
	// sent before it.
	metadataCount = "count"
)

// EventSource wraps a pubsub subscription and decodes incoming messages into
// typed events.
type EventSource struct {
	subscription *pubsub.Subscription
	eventType    reflect.Type
	decoder      func(p []byte, v reflect.Value) error
}

// NewReadingSource returns an EventSource that decodes gob-encoded Reading
// messages, as sent by PublishReadings.
func NewReadingSource(sub *pubsub.Subscription) EventSource {
	return EventSource{
		subscription: sub,
		eventType:    reflect.TypeOf(Reading{}),
		decoder: func(p []byte, v reflect.Value) error {
			return gob.NewDecoder(bytes.NewReader(p)).DecodeValue(v)
		},
	}
}

// EventHandler is a function that processes a decoded event message.
type EventHandler func(ctx context.Context, msg any) error

// Stream returns a component.Proc that continuously receives messages from the
// subscription, decodes them using the configured decoder, and passes them to
// the provided EventHandler.
//
// The procedure returns once its context is done or once it receives the
// end-of-stream marker. Failing to receive, decode, or handle a message is
// fatal to the procedure.
func (s EventSource) Stream(h EventHandler) component.Proc {
	return func(l *component.L) {
		if err := s.Consume(l.Context(), h); err != nil {
			l.Fatal(err)
		}
	}
}

// Consume receives messages until ctx is done or the stream ends, passing every
// decoded event to h. It returns nil in both cases, and the first error
// otherwise.
//
// A stream ends with the end-of-stream marker. When the marker counts the
// events sent before it, Consume keeps receiving until it has handled that
// many, since the transport may deliver the marker ahead of them.
func (s EventSource) Consume(ctx context.Context, h EventHandler) error {
	logger := component.Logger(ctx)
	handled, expected := 0, -1
	for expected < 0 || handled < expected {
		msg, err := s.subscription.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// we're shutting down
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		// always ack, even if we fail to decode.
		// otherwise, we might get stuck processing
		// the same failed message
		msg.Ack()

		if msg.Metadata[metadataEndOfStream] == "true" {
			logger.Debug("End of stream received, stopping...")
			n, err := strconv.Atoi(msg.Metadata[metadataCount])
			if err != nil {
				return nil
			}
			expected = n
			continue
		}

		v := reflect.New(s.eventType)
		if err := s.decoder(msg.Body, v); err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		if err := h(ctx, v.Elem().Interface()); err != nil {
			return fmt.Errorf("process: %w", err)
		}
		handled++
	}
	return nil
}

// PublishReadings gob-encodes every reading and sends it to the given topic,
// in order, followed by the end-of-stream marker. It stops at the first failure.
func PublishReadings(ctx context.Context, topic *pubsub.Topic, readings []Reading) (err error) {
	ctx, span := tracer.Start(ctx, "PublishReadings", trace.WithAttributes(
		attribute.Int("readings.count", len(readings)),
	))
	defer span.End()
	defer func(start time.Time) {
		measurePublish(ctx, len(readings), err == nil, time.Since(start))
	}(time.Now())

	logger := component.Logger(ctx)
	logger.Debug("Publishing readings...", slog.Int("count", len(readings)))

	var b bytes.Buffer
	for i := range readings {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("send reading %d: %w", i, err)
		}
		b.Reset()
		// a fresh encoder per message keeps every body self-describing
		if err := gob.NewEncoder(&b).Encode(readings[i]); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("encode reading %d: %w", i, err)
		}
		msg := &pubsub.Message{
			Body:     bytes.Clone(b.Bytes()),
			Metadata: map[string]string{"timestamp": readings[i].Timestamp.Format(time.RFC3339)},
		}
		if err := topic.Send(ctx, msg); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("send reading %d: %w", i, err)
		}
	}

	eos := &pubsub.Message{Body: []byte{}, Metadata: map[string]string{
		metadataEndOfStream: "true",
		metadataCount:       strconv.Itoa(len(readings)),
	}}
	if err := topic.Send(ctx, eos); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("send end of stream: %w", err)
	}
	logger.Debug("Readings published")
	return nil
}
