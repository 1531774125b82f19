package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/config"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/warehouse"
)

// Relay is the public entry point of the pipeline: it merges agent
// configuration into a request, issues the agent API call, drives the
// decoder and accumulator over the response, and synthesizes the final
// structured answer.
//
// Error policy: only transport failures during active streaming come back
// as Go errors. Configuration problems, authentication failures and SQL
// errors all fold into a displayable Response.
type Relay struct {
	client           *agentapi.Client
	agents           config.AgentProvider
	executor         warehouse.Executor
	synthesizer      *Synthesizer
	sinks            []events.EventSink
	tracer           events.Tracer
	model            string
	captureReasoning bool
	fallbackSQL      string
	experimental     map[string]interface{}
}

type Option func(*Relay)

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(r *Relay) {
		r.sinks = append(r.sinks, sinks...)
	}
}

func WithTracer(tracer events.Tracer) Option {
	return func(r *Relay) {
		r.tracer = tracer
	}
}

func WithModel(model string) Option {
	return func(r *Relay) {
		r.model = model
	}
}

// WithReasoningCapture enables accumulation of thinking content and the
// paired reasoning result.
func WithReasoningCapture(enabled bool) Option {
	return func(r *Relay) {
		r.captureReasoning = enabled
	}
}

// WithToolResultVisibility controls whether raw tool results surface in the
// user-visible insights. Off by default.
func WithToolResultVisibility(show bool) Option {
	return func(r *Relay) {
		r.synthesizer.showToolResults = show
	}
}

// WithFallbackSQL sets the static query executed when the agent API path is
// unavailable.
func WithFallbackSQL(sql string) Option {
	return func(r *Relay) {
		r.fallbackSQL = sql
	}
}

// WithExperimentalFlags sets flags re-applied on top of any agent_spec
// merge.
func WithExperimentalFlags(flags map[string]interface{}) Option {
	return func(r *Relay) {
		r.experimental = flags
	}
}

func NewRelay(client *agentapi.Client, agents config.AgentProvider, executor warehouse.Executor, options ...Option) *Relay {
	ret := &Relay{
		client:   client,
		agents:   agents,
		executor: executor,
		tracer:   events.NewNullTracer(),
	}
	ret.synthesizer = NewSynthesizer(executor)
	for _, o := range options {
		o(ret)
	}
	ret.synthesizer.tracer = ret.tracer
	return ret
}

// QueryOptions carry per-query settings.
type QueryOptions struct {
	// Observer is invoked synchronously per delta, on the decoding path.
	Observer agentapi.DeltaObserver
	// User is the display name of the asking user, available to
	// instruction templates.
	User string
}

// Query relays one natural-language question to the named agent and
// returns the synthesized response.
func (r *Relay) Query(ctx context.Context, agentName string, query string, opts QueryOptions) (*Response, error) {
	metadata := events.EventMetadata{
		ID:      uuid.New(),
		QueryID: uuid.NewString(),
		Agent:   agentName,
	}

	log.Info().Str("agent", agentName).Str("query_id", metadata.QueryID).Msg("Relaying query to agent API")

	cfg, err := r.agents.GetAgentConfiguration(agentName)
	if err != nil {
		log.Error().Err(err).Str("agent", agentName).Msg("Agent configuration lookup failed")
		return NewResponse(configurationErrorResult(agentName, err)), nil
	}
	if cfg == nil {
		return NewResponse(configurationErrorResult(agentName, nil)), nil
	}

	payload, err := r.buildPayload(cfg, query, opts.User)
	if err != nil {
		return NewResponse(configurationErrorResult(agentName, err)), nil
	}

	r.publishEvent(events.NewStartEvent(metadata, query))

	call, err := r.client.Send(ctx, payload)
	if err != nil {
		// Pre-stream failures (auth included) fall through to the fallback
		// query path instead of surfacing.
		log.Warn().Err(err).Msg("Agent API call failed, trying fallback query")
		r.publishEvent(events.NewErrorEvent(metadata, err))
		return r.runFallback(ctx, err), nil
	}

	acc := NewAccumulator(r.captureReasoning)
	decoder := agentapi.NewStreamDecoder(
		agentapi.WithTracer(r.tracer),
		agentapi.WithDeltaObserver(func(delta *agentapi.Delta) {
			acc.Route(delta)
			r.publishDeltaEvents(metadata, delta)
			if opts.Observer != nil {
				opts.Observer(delta)
			}
		}),
		agentapi.WithCompletionFunc(func(totalDeltas int) {
			log.Debug().Int("total_deltas", totalDeltas).Str("query_id", metadata.QueryID).Msg("Stream complete")
		}),
	)

	switch call.Kind {
	case agentapi.ResponseKindStream:
		defer func() {
			_ = call.Stream.Close()
		}()
		if err := agentapi.DecodeStream(ctx, call.Stream, decoder); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.publishEvent(events.NewInterruptEvent(metadata, acc.Text()))
			} else {
				r.publishEvent(events.NewErrorEvent(metadata, err))
			}
			return nil, err
		}

	case agentapi.ResponseKindJSON:
		delta, err := agentapi.ParseMessageResponse(call.JSON, time.Now())
		if err != nil {
			r.publishEvent(events.NewErrorEvent(metadata, err))
			return r.runFallback(ctx, err), nil
		}
		// through the decoder so the observer gets the same panic recovery
		// as the streaming paths
		decoder.Emit(delta)

	case agentapi.ResponseKindBuffered:
		agentapi.DecodeBuffered(call.Buffered, decoder)
	}

	response := r.synthesizer.Synthesize(ctx, acc)
	main := response.Main()
	r.publishEvent(events.NewFinalEvent(metadata, main.Summary, main.SQL, len(main.Rows), decoder.Count()))

	return response, nil
}

func (r *Relay) buildPayload(cfg *config.AgentConfiguration, query string, user string) (map[string]interface{}, error) {
	instruction, err := cfg.RenderInstruction(config.InstructionData{
		Query: query,
		Agent: cfg.Name,
		User:  user,
	})
	if err != nil {
		return nil, err
	}

	model := r.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	req := &agentapi.MessagesRequest{
		Model:               model,
		ResponseInstruction: instruction,
		Tools:               cfg.Tools,
		ToolResources:       cfg.ToolResources,
		ToolChoice:          cfg.ToolChoice,
		Messages:            []agentapi.Message{agentapi.NewUserMessage(query)},
		ExperimentalFlags:   r.experimental,
		Stream:              true,
	}

	return agentapi.BuildPayload(req, cfg.AgentSpec)
}

// runFallback executes the configured static fallback query. When that also
// fails (or none is configured), the caller still gets a structured
// error_fallback result rather than an error.
func (r *Relay) runFallback(ctx context.Context, cause error) *Response {
	if r.fallbackSQL == "" || r.executor == nil {
		return NewResponse(errorFallbackResult(cause))
	}

	rows, err := r.executor.ExecuteQuery(ctx, r.fallbackSQL)
	if err != nil {
		log.Error().Err(err).Msg("Fallback query failed")
		return NewResponse(errorFallbackResult(cause))
	}

	return NewResponse(&SynthesizedResult{
		Summary:  fmt.Sprintf("The agent API was unavailable, showing %d recent result(s) instead.", len(rows)),
		Rows:     rows,
		Insights: "Results come from the fallback query, not the agent.",
		SQL:      r.fallbackSQL,
		Source:   SourceFallbackQuery,
	})
}

func (r *Relay) publishDeltaEvents(metadata events.EventMetadata, delta *agentapi.Delta) {
	var text string
	for _, item := range delta.Content {
		switch c := item.(type) {
		case agentapi.TextContent:
			text += c.Text
		case agentapi.ThinkingContent:
			if c.Text != "" {
				r.publishEvent(events.NewThinkingDeltaEvent(metadata, c.Text))
			}
		case agentapi.ToolUseContent:
			r.publishEvent(events.NewToolCallEvent(metadata, c.Name, c.Input))
		}
	}
	r.publishEvent(events.NewDeltaEvent(metadata, delta.Index, text))
}

func (r *Relay) publishEvent(event events.Event) {
	for _, sink := range r.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to publish event to sink")
		}
	}
}

func configurationErrorResult(agentName string, cause error) *SynthesizedResult {
	insights := "Configure an agent and try again."
	if cause != nil {
		insights = "Agent lookup failed: " + cause.Error()
	}
	return &SynthesizedResult{
		Summary:  fmt.Sprintf("No agent named %q is configured.", agentName),
		Insights: insights,
		Source:   SourceConfigurationError,
	}
}

func errorFallbackResult(cause error) *SynthesizedResult {
	return &SynthesizedResult{
		Summary:  "I could not reach the agent API or the data warehouse.",
		Insights: "Error: " + cause.Error(),
		Source:   SourceErrorFallback,
	}
}
