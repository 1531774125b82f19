package agentapi

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/events"
)

type StreamEventType string

const (
	MessageDeltaType StreamEventType = "message.delta"
	DoneType         StreamEventType = "done"
)

// DeltaObserver is invoked synchronously for each parsed delta, before the
// decoder moves on to the next frame. A slow observer delays subsequent
// chunk processing; panics are recovered and logged.
type DeltaObserver func(delta *Delta)

// CompletionFunc is invoked exactly once when the stream finished, with the
// total number of deltas emitted.
type CompletionFunc func(totalDeltas int)

// StreamDecoder converts an unbounded, chunked SSE text stream into an
// ordered sequence of Delta records. Chunk boundaries need not align with
// event boundaries: the decoder keeps a single growing buffer and only
// processes fully terminated frames.
//
// Usage:
//  1. Create a decoder with NewStreamDecoder()
//  2. Call Feed() for every chunk as it arrives
//  3. Call Finish() when the transport signals EOF
//
// A frame is relevant only if it carries both an `event: message.delta`
// marker and a `data:` line. A `done` event (or a `[DONE]` data sentinel)
// triggers the completion notification instead. Malformed JSON inside a
// single frame is logged and skipped; the delta index counts successful
// parses only.
type StreamDecoder struct {
	buffer    string
	count     int
	observer  DeltaObserver
	onDone    CompletionFunc
	tracer    events.Tracer
	completed bool
	now       func() time.Time
}

type StreamDecoderOption func(*StreamDecoder)

func WithDeltaObserver(observer DeltaObserver) StreamDecoderOption {
	return func(d *StreamDecoder) {
		d.observer = observer
	}
}

func WithCompletionFunc(f CompletionFunc) StreamDecoderOption {
	return func(d *StreamDecoder) {
		d.onDone = f
	}
}

func WithTracer(tracer events.Tracer) StreamDecoderOption {
	return func(d *StreamDecoder) {
		d.tracer = tracer
	}
}

func NewStreamDecoder(options ...StreamDecoderOption) *StreamDecoder {
	ret := &StreamDecoder{
		tracer: events.NewNullTracer(),
		now:    time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Count returns the number of deltas emitted so far.
func (d *StreamDecoder) Count() int {
	return d.count
}

// Feed appends a chunk to the buffer and processes every fully terminated
// frame, keeping the trailing incomplete fragment for the next call.
func (d *StreamDecoder) Feed(chunk string) {
	// Normalizing CRLF here keeps the blank-line split working for both
	// line-ending conventions, including a \r\n split across two chunks.
	d.buffer = strings.ReplaceAll(d.buffer+chunk, "\r\n", "\n")

	frames := strings.Split(d.buffer, "\n\n")
	d.buffer = frames[len(frames)-1]
	for _, frame := range frames[:len(frames)-1] {
		d.processFrame(frame)
	}
}

// Finish flushes any trailing complete frame still in the buffer and fires
// the completion notification if no done event did so already. Safe to call
// after a done event; the notification fires at most once.
func (d *StreamDecoder) Finish() {
	if strings.TrimSpace(d.buffer) != "" {
		d.processFrame(d.buffer)
		d.buffer = ""
	}
	d.complete()
}

func (d *StreamDecoder) complete() {
	if d.completed {
		return
	}
	d.completed = true
	log.Debug().Int("total_deltas", d.count).Msg("Agent stream finished")
	if d.onDone != nil {
		d.onDone(d.count)
	}
}

func (d *StreamDecoder) processFrame(frame string) {
	eventType, data := splitFrame(frame)

	d.tracer.Trace("decoder", "frame", map[string]interface{}{
		"event": eventType,
		"data":  data,
	})

	switch {
	case eventType == string(DoneType) || data == "[DONE]":
		d.complete()
		return

	case eventType != string(MessageDeltaType) || data == "":
		// comments, pings, anything without both markers
		return
	}

	delta, err := ParseDelta([]byte(data), d.count+1, d.now())
	if err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to parse message.delta payload, skipping frame")
		d.tracer.Trace("decoder", "parse failure", map[string]interface{}{"error": err.Error()})
		return
	}
	d.count++

	log.Debug().Object("delta", *delta).Msg("Parsed streaming delta")

	if d.observer != nil {
		d.observe(delta)
	}
}

// Emit hands an externally constructed delta to the observer, with the same
// recovery the frame-parsing path gets. The single-JSON response path uses
// this so observer behavior does not depend on the response shape.
func (d *StreamDecoder) Emit(delta *Delta) {
	d.count++
	log.Debug().Object("delta", *delta).Msg("Emitting external delta")
	if d.observer != nil {
		d.observe(delta)
	}
}

func (d *StreamDecoder) observe(delta *Delta) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("delta_index", delta.Index).Msg("Delta observer panicked")
		}
	}()
	d.observer(delta)
}

// splitFrame extracts the event type and the concatenated data payload of
// one SSE frame. Multiple data lines are joined with newlines per the SSE
// scheme; carriage returns are stripped.
func splitFrame(frame string) (eventType string, data string) {
	var dataLines []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return eventType, strings.Join(dataLines, "\n")
}

// DecodeStream reads chunks from r and feeds them to the decoder until EOF.
// Transport errors propagate; deltas already emitted stand as emitted.
func DecodeStream(ctx context.Context, r io.Reader, decoder *StreamDecoder) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			decoder.Feed(string(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				decoder.Finish()
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return errors.Wrap(err, "reading agent stream")
		}
	}
}

// DecodeBuffered feeds a single already-buffered SSE text blob through the
// decoder. The legacy non-streaming path uses this; routing and synthesis
// behave identically to the live path for identical content.
func DecodeBuffered(blob string, decoder *StreamDecoder) {
	decoder.Feed(blob)
	decoder.Finish()
}
