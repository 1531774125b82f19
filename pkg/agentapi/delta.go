package agentapi

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DeltaMetadata carries the opaque identifiers of the originating event
// payload. Passed through untouched.
type DeltaMetadata struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Delta is one incremental unit of agent output, parsed from a single
// message.delta SSE event. Deltas are immutable once created; the index is
// 1-based and assigned in arrival order, counting successful parses only.
type Delta struct {
	Index     int           `json:"index"`
	Timestamp time.Time     `json:"timestamp"`
	Content   []Content     `json:"content"`
	Metadata  DeltaMetadata `json:"metadata"`
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	e.Int("index", d.Index)
	e.Int("num_content", len(d.Content))
	e.Str("id", d.Metadata.ID)
	e.Str("kind", d.Metadata.Kind)
}

// deltaEnvelope mirrors the wire layout of a message.delta data payload.
type deltaEnvelope struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Delta  struct {
		Content []json.RawMessage `json:"content"`
	} `json:"delta"`
}

// ParseDelta decodes one message.delta payload. The index is assigned by
// the caller, content items that fail to decode individually are dropped
// rather than failing the whole delta.
func ParseDelta(data []byte, index int, now time.Time) (*Delta, error) {
	var envelope deltaEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	delta := &Delta{
		Index:     index,
		Timestamp: now,
		Metadata: DeltaMetadata{
			ID:   envelope.ID,
			Kind: envelope.Object,
		},
	}

	for _, raw := range envelope.Delta.Content {
		item, err := DecodeContentItem(raw)
		if err != nil {
			// A single undecodable item should not take the delta down with it.
			log.Debug().Err(err).Int("delta_index", index).Msg("Dropping undecodable content item")
			continue
		}
		delta.Content = append(delta.Content, item)
	}

	return delta, nil
}

var _ zerolog.LogObjectMarshaler = Delta{}
