package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart is published when the agent request is issued.
	EventTypeStart EventType = "start"
	// EventTypeDelta is published once per parsed message.delta frame.
	EventTypeDelta EventType = "delta"
	// EventTypeThinkingDelta carries reasoning text captured from a delta.
	EventTypeThinkingDelta EventType = "thinking-delta"
	// EventTypeToolCall is published when the agent requests a tool invocation.
	EventTypeToolCall EventType = "tool-call"
	// EventTypeFinal carries the synthesized result once the stream ended.
	EventTypeFinal EventType = "final"
	EventTypeError EventType = "error"
	// EventTypeInterrupt is published when the caller cancelled mid-stream.
	EventTypeInterrupt EventType = "interrupt"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata identifies the query a stream of events belongs to.
type EventMetadata struct {
	ID      uuid.UUID `json:"id"`
	QueryID string    `json:"query_id,omitempty"`
	Agent   string    `json:"agent,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	if em.QueryID != "" {
		e.Str("query_id", em.QueryID)
	}
	if em.Agent != "" {
		e.Str("agent", em.Agent)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// payload as serialized, kept around for subscribers that re-publish
	payload []byte
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }
func (e *EventImpl) Payload() []byte         { return e.payload }

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = (*EventImpl)(nil)

type EventStart struct {
	EventImpl
	Query string `json:"query"`
}

func NewStartEvent(metadata EventMetadata, query string) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
		Query:     query,
	}
}

// EventDelta mirrors one delta as it came off the wire: the index, the
// concatenated text of the delta's text items, and the raw payload.
type EventDelta struct {
	EventImpl
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func NewDeltaEvent(metadata EventMetadata, index int, text string) *EventDelta {
	return &EventDelta{
		EventImpl: EventImpl{Type_: EventTypeDelta, Metadata_: metadata},
		Index:     index,
		Text:      text,
	}
}

type EventThinkingDelta struct {
	EventImpl
	Text string `json:"text"`
}

func NewThinkingDeltaEvent(metadata EventMetadata, text string) *EventThinkingDelta {
	return &EventThinkingDelta{
		EventImpl: EventImpl{Type_: EventTypeThinkingDelta, Metadata_: metadata},
		Text:      text,
	}
}

type EventToolCall struct {
	EventImpl
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

func NewToolCallEvent(metadata EventMetadata, name string, input json.RawMessage) *EventToolCall {
	return &EventToolCall{
		EventImpl: EventImpl{Type_: EventTypeToolCall, Metadata_: metadata},
		Name:      name,
		Input:     input,
	}
}

type EventFinal struct {
	EventImpl
	Summary     string `json:"summary"`
	SQL         string `json:"sql,omitempty"`
	RowCount    int    `json:"row_count"`
	TotalDeltas int    `json:"total_deltas"`
}

func NewFinalEvent(metadata EventMetadata, summary string, sql string, rowCount int, totalDeltas int) *EventFinal {
	return &EventFinal{
		EventImpl:   EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Summary:     summary,
		SQL:         sql,
		RowCount:    rowCount,
		TotalDeltas: totalDeltas,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}
