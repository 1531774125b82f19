package agentapi

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessagesRequest represents the agent API request payload.
type MessagesRequest struct {
	Model               string                 `json:"model,omitempty"`
	ResponseInstruction string                 `json:"response_instruction,omitempty"`
	Tools               []Tool                 `json:"tools,omitempty"`
	ToolResources       map[string]interface{} `json:"tool_resources,omitempty"`
	ToolChoice          *ToolChoice            `json:"tool_choice,omitempty"`
	Messages            []Message              `json:"messages"`
	ExperimentalFlags   map[string]interface{} `json:"experimental,omitempty"`
	Stream              bool                   `json:"stream"`
}

type Tool struct {
	ToolSpec ToolSpec `json:"tool_spec" yaml:"tool_spec"`
}

type ToolSpec struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type ToolChoice struct {
	Type string   `json:"type" yaml:"type"`
	Name []string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Message struct {
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

type MessageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewUserMessage(text string) Message {
	return Message{
		Role: "user",
		Content: []MessageContent{
			{Type: "text", Text: text},
		},
	}
}

// BuildPayload turns a request into the JSON object actually POSTed. When an
// agent_spec is configured it becomes the payload base, with the user's
// messages, experimental flags and the stream setting re-applied on top so
// they survive the merge.
func BuildPayload(req *MessagesRequest, agentSpec map[string]interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal messages request")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, errors.Wrap(err, "could not build request payload")
	}

	if agentSpec == nil {
		return payload, nil
	}

	merged := make(map[string]interface{}, len(agentSpec))
	for k, v := range agentSpec {
		merged[k] = v
	}
	merged["messages"] = payload["messages"]
	merged["stream"] = payload["stream"]
	if flags, ok := payload["experimental"]; ok {
		merged["experimental"] = flags
	}

	return merged, nil
}
