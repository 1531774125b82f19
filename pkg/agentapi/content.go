package agentapi

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ContentType string

const (
	ContentTypeText        ContentType = "text"
	ContentTypeThinking    ContentType = "thinking"
	ContentTypeToolUse     ContentType = "tool_use"
	ContentTypeToolResults ContentType = "tool_results"
	ContentTypeChart       ContentType = "chart"
	ContentTypeUnknown     ContentType = "unknown"
)

type Content interface {
	Type() ContentType
}

type BaseContent struct {
	Type_ ContentType `json:"type"`
}

type TextContent struct {
	BaseContent
	Text string `json:"text"`
}

func (t TextContent) Type() ContentType {
	return ContentTypeText
}

// ThinkingContent carries the agent's reasoning text. The wire value is
// either a bare string or an object with one of several text-bearing
// fields; normalizeThinking resolves that before the value leaves this
// package.
type ThinkingContent struct {
	BaseContent
	Text string `json:"thinking"`
}

func (t ThinkingContent) Type() ContentType {
	return ContentTypeThinking
}

type ToolUseContent struct {
	BaseContent
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (t ToolUseContent) Type() ContentType {
	return ContentTypeToolUse
}

type ToolResultsContent struct {
	BaseContent
	Items []ResultItem `json:"content"`
}

func (t ToolResultsContent) Type() ContentType {
	return ContentTypeToolResults
}

type ChartContent struct {
	BaseContent
	// Spec is the serialized chart-library specification, usually a JSON
	// string nested inside the chart object.
	Spec string `json:"chart_spec"`
}

func (c ChartContent) Type() ContentType {
	return ContentTypeChart
}

type UnknownContent struct {
	BaseContent
	Raw json.RawMessage `json:"-"`
}

func (u UnknownContent) Type() ContentType {
	return ContentTypeUnknown
}

type ResultItemType string

const (
	ResultItemJSON ResultItemType = "json"
	ResultItemCSV  ResultItemType = "csv"
)

// ResultItem is one entry of a tool_results content block, either a JSON
// value or a CSV text payload.
type ResultItem struct {
	Type ResultItemType  `json:"type"`
	JSON json.RawMessage `json:"json,omitempty"`
	CSV  string          `json:"csv,omitempty"`
}

func NewTextContent(text string) Content {
	return TextContent{BaseContent: BaseContent{Type_: ContentTypeText}, Text: text}
}

func NewThinkingContent(text string) Content {
	return ThinkingContent{BaseContent: BaseContent{Type_: ContentTypeThinking}, Text: text}
}

func NewToolUseContent(name string, input json.RawMessage) Content {
	return ToolUseContent{BaseContent: BaseContent{Type_: ContentTypeToolUse}, Name: name, Input: input}
}

func NewToolResultsContent(items []ResultItem) Content {
	return ToolResultsContent{BaseContent: BaseContent{Type_: ContentTypeToolResults}, Items: items}
}

func NewChartContent(spec string) Content {
	return ChartContent{BaseContent: BaseContent{Type_: ContentTypeChart}, Spec: spec}
}

// rawContentItem mirrors the wire layout of one content entry. The payload
// nests the variant-specific object under a key named after the type, except
// for text which is inline.
type rawContentItem struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	Thinking    json.RawMessage `json:"thinking,omitempty"`
	ToolUse     json.RawMessage `json:"tool_use,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
	Chart       json.RawMessage `json:"chart,omitempty"`
}

type rawToolUse struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type rawToolResults struct {
	Content []ResultItem `json:"content"`
}

type rawChart struct {
	ChartSpec string `json:"chart_spec"`
}

// DecodeContentItem turns one wire content entry into its typed variant.
// Unrecognized types decode into UnknownContent rather than failing, so a
// new server-side content kind never kills a stream.
func DecodeContentItem(raw json.RawMessage) (Content, error) {
	var item rawContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}

	switch ContentType(item.Type) {
	case ContentTypeText:
		return NewTextContent(item.Text), nil

	case ContentTypeThinking:
		return NewThinkingContent(normalizeThinking(item.Thinking)), nil

	case ContentTypeToolUse:
		var tu rawToolUse
		if err := json.Unmarshal(item.ToolUse, &tu); err != nil {
			return nil, err
		}
		return NewToolUseContent(tu.Name, tu.Input), nil

	case ContentTypeToolResults:
		var tr rawToolResults
		if err := json.Unmarshal(item.ToolResults, &tr); err != nil {
			return nil, err
		}
		return NewToolResultsContent(tr.Content), nil

	case ContentTypeChart:
		var c rawChart
		if err := json.Unmarshal(item.Chart, &c); err != nil {
			return nil, err
		}
		return NewChartContent(c.ChartSpec), nil

	default:
		log.Debug().Str("content_type", item.Type).Msg("Skipping unknown content item type")
		return UnknownContent{BaseContent: BaseContent{Type_: ContentTypeUnknown}, Raw: raw}, nil
	}
}

// normalizeThinking resolves the string-or-object ambiguity of thinking
// payloads: a bare JSON string is taken as-is, an object yields the first
// non-empty of .text, .content, .message, and anything else falls back to
// its compact JSON rendering.
func normalizeThinking(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		switch {
		case obj.Text != "":
			return obj.Text
		case obj.Content != "":
			return obj.Content
		case obj.Message != "":
			return obj.Message
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}

func (t TextContent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(ContentTypeText))
	e.Str("text", t.Text)
}

func (t ToolUseContent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(ContentTypeToolUse))
	e.Str("name", t.Name)
	if len(t.Input) > 0 {
		e.RawJSON("input", t.Input)
	}
}
