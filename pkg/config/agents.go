package config

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/figaro/pkg/agentapi"
)

// AgentConfiguration is one named agent entry. Whichever fields are present
// get merged into the request payload; AgentSpec, when set, becomes the
// payload base instead.
type AgentConfiguration struct {
	Name                string                 `yaml:"name"`
	Model               string                 `yaml:"model,omitempty"`
	ResponseInstruction string                 `yaml:"response_instruction,omitempty"`
	Tools               []agentapi.Tool        `yaml:"tools,omitempty"`
	ToolResources       map[string]interface{} `yaml:"tool_resources,omitempty"`
	ToolChoice          *agentapi.ToolChoice   `yaml:"tool_choice,omitempty"`
	AgentSpec           map[string]interface{} `yaml:"agent_spec,omitempty"`
}

// InstructionData is the template context for response instructions.
type InstructionData struct {
	Query string
	Agent string
	User  string
}

// RenderInstruction renders the response_instruction as a template with the
// sprig function map. An instruction without template actions passes
// through unchanged.
func (c *AgentConfiguration) RenderInstruction(data InstructionData) (string, error) {
	if c.ResponseInstruction == "" {
		return "", nil
	}
	tmpl, err := template.New("instruction").Funcs(sprig.TxtFuncMap()).Parse(c.ResponseInstruction)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse response instruction for agent %s", c.Name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "could not render response instruction for agent %s", c.Name)
	}
	return sb.String(), nil
}

// AgentProvider looks up agent configurations by name. A nil result with a
// nil error means "no such agent" and the relay turns that into a
// configuration-error answer rather than failing.
type AgentProvider interface {
	GetAgentConfiguration(name string) (*AgentConfiguration, error)
}

// Registry is a directory-backed AgentProvider: every *.yaml file under the
// directory holds one AgentConfiguration.
type Registry struct {
	agents map[string]*AgentConfiguration
}

func NewRegistry() *Registry {
	return &Registry{agents: map[string]*AgentConfiguration{}}
}

// LoadRegistry reads every *.yaml / *.yml file under dir. Files that fail
// to parse are skipped with a warning so one bad file does not take the
// whole registry down.
func LoadRegistry(dir string) (*Registry, error) {
	ret := NewRegistry()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read agents directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not read agent configuration, skipping")
			continue
		}

		cfg := &AgentConfiguration{}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not parse agent configuration, skipping")
			continue
		}
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(entry.Name(), ext)
		}

		ret.agents[cfg.Name] = cfg
		log.Debug().Str("agent", cfg.Name).Str("path", path).Msg("Loaded agent configuration")
	}

	return ret, nil
}

func (r *Registry) Add(cfg *AgentConfiguration) {
	r.agents[cfg.Name] = cfg
}

func (r *Registry) GetAgentConfiguration(name string) (*AgentConfiguration, error) {
	return r.agents[name], nil
}

var _ AgentProvider = (*Registry)(nil)
