package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/agentapi"
)

func deltaWith(index int, items ...agentapi.Content) *agentapi.Delta {
	return &agentapi.Delta{Index: index, Content: items}
}

func TestAccumulatorTextConcatenation(t *testing.T) {
	acc := NewAccumulator(false)
	acc.Route(deltaWith(1, agentapi.NewTextContent("Hello, ")))
	acc.Route(deltaWith(2, agentapi.NewTextContent("world")))

	assert.Equal(t, "Hello, world", acc.Text())
}

func TestAccumulatorThinkingOnlyWhenCaptureEnabled(t *testing.T) {
	off := NewAccumulator(false)
	off.Route(deltaWith(1, agentapi.NewThinkingContent("hmm")))
	assert.Empty(t, off.Thinking())
	assert.False(t, off.HasThinking())

	on := NewAccumulator(true)
	on.Route(deltaWith(1, agentapi.NewThinkingContent("hmm ")))
	on.Route(deltaWith(2, agentapi.NewThinkingContent("aha")))
	assert.Equal(t, "hmm aha", on.Thinking())
	assert.True(t, on.HasThinking())
}

func TestAccumulatorToolChannelOrdering(t *testing.T) {
	acc := NewAccumulator(false)
	acc.Route(deltaWith(1,
		agentapi.NewTextContent("before "),
		agentapi.NewToolUseContent("analyst", json.RawMessage(`{}`)),
	))
	acc.Route(deltaWith(2,
		agentapi.NewToolResultsContent([]agentapi.ResultItem{{Type: agentapi.ResultItemCSV, CSV: "a\n1"}}),
		agentapi.NewTextContent("after"),
	))

	// text and tool items accumulate in separate channels
	assert.Equal(t, "before after", acc.Text())

	tools := acc.ToolResults()
	require.Len(t, tools, 2)
	assert.Equal(t, agentapi.ContentTypeToolUse, tools[0].Type())
	assert.Equal(t, agentapi.ContentTypeToolResults, tools[1].Type())
}

func TestAccumulatorChartsAndUnknown(t *testing.T) {
	acc := NewAccumulator(false)
	require.NotPanics(t, func() {
		acc.Route(deltaWith(1,
			agentapi.NewChartContent(`{"mark":"bar"}`),
			agentapi.UnknownContent{},
		))
	})

	assert.Len(t, acc.Charts(), 1)
	assert.Empty(t, acc.ToolResults())
	assert.Empty(t, acc.Text())
}
