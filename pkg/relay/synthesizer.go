package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/format"
	"github.com/go-go-golems/figaro/pkg/warehouse"
)

const (
	insightExecutedPrefix   = "SQL executed successfully."
	insightNoResultsPrefix  = "SQL executed but returned no results."
	insightFailedPrefix     = "SQL execution failed: "
	insightChartNote        = "A chart specification was generated for this result."
	defaultEmptySummary     = "Query processed successfully."
	summaryRowCountTemplate = "Found %d result(s) for your query."
)

// Synthesizer turns a finished Accumulator into a SynthesizedResult,
// including extraction and execution of any SQL the agent produced.
//
// Usage:
//  1. Create with NewSynthesizer(), passing the warehouse executor
//  2. Feed the accumulator to Synthesize() once the stream completed
//
// Synthesize never fails: SQL execution errors, empty aggregates and
// malformed chart specs all fold into the result's fields.
type Synthesizer struct {
	executor        warehouse.Executor
	tracer          events.Tracer
	showToolResults bool
}

type SynthesizerOption func(*Synthesizer)

func WithSynthesizerTracer(tracer events.Tracer) SynthesizerOption {
	return func(s *Synthesizer) {
		s.tracer = tracer
	}
}

// WithSynthesizerToolResults controls whether raw tool results are folded
// into the user-visible insights.
func WithSynthesizerToolResults(show bool) SynthesizerOption {
	return func(s *Synthesizer) {
		s.showToolResults = show
	}
}

func NewSynthesizer(executor warehouse.Executor, options ...SynthesizerOption) *Synthesizer {
	ret := &Synthesizer{
		executor: executor,
		tracer:   events.NewNullTracer(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Synthesize combines the accumulator's aggregates into the final response.
// When thinking capture produced content, a second reasoning-only result is
// paired with the main one; the reasoning result never goes through SQL
// trigger logic, whatever its text looks like.
func (s *Synthesizer) Synthesize(ctx context.Context, acc *Accumulator) *Response {
	main := s.synthesize(ctx, acc, true)

	if acc.HasThinking() && acc.Thinking() != "" {
		reasoning := NewAccumulator(false)
		reasoning.Route(&agentapi.Delta{
			Index:   1,
			Content: []agentapi.Content{agentapi.NewTextContent(acc.Thinking())},
		})
		second := s.synthesize(ctx, reasoning, false)
		return NewResponse(main, second)
	}

	return NewResponse(main)
}

func (s *Synthesizer) synthesize(ctx context.Context, acc *Accumulator, executeSQL bool) *SynthesizedResult {
	result := &SynthesizedResult{
		Source: SourceAgentAPI,
	}

	s.extractToolResults(acc, result)
	s.extractCharts(acc, result)

	result.Summary = strings.TrimSpace(acc.Text())

	if executeSQL && strings.TrimSpace(result.SQL) != "" {
		s.runSQL(ctx, result)
	}

	if result.Summary == "" {
		if len(result.Rows) > 0 {
			result.Summary = fmt.Sprintf(summaryRowCountTemplate, len(result.Rows))
		} else {
			result.Summary = defaultEmptySummary
		}
	}

	log.Debug().Object("result", result).Msg("Synthesized result")
	return result
}

// extractToolResults walks the tool items in arrival order, pulling out the
// generated SQL, tabular rows (last one wins, no merge) and CSV payloads.
func (s *Synthesizer) extractToolResults(acc *Accumulator, result *SynthesizedResult) {
	for _, item := range acc.ToolResults() {
		switch c := item.(type) {
		case agentapi.ToolUseContent:
			s.tracer.Trace("synthesizer", "tool use", map[string]interface{}{"name": c.Name})

		case agentapi.ToolResultsContent:
			for _, ri := range c.Items {
				switch ri.Type {
				case agentapi.ResultItemJSON:
					s.extractJSONResult(ri.JSON, result)
				case agentapi.ResultItemCSV:
					if rows := format.ParseSimpleCSV(ri.CSV); rows != nil {
						result.Rows = rows
					}
				}
				if s.showToolResults {
					s.appendRawToolResult(ri, result)
				}
			}
		}
	}
}

func (s *Synthesizer) extractJSONResult(raw json.RawMessage, result *SynthesizedResult) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return
	}

	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]interface{}
		if err := json.Unmarshal(raw, &rows); err != nil {
			log.Debug().Err(err).Msg("Could not parse JSON result array as rows")
			return
		}
		result.Rows = rows
		return
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		log.Debug().Err(err).Msg("Could not parse JSON tool result")
		return
	}

	if sqlValue, ok := obj["sql"].(string); ok && sqlValue != "" {
		result.SQL = sqlValue
		if text, ok := obj["text"].(string); ok && text != "" {
			result.Insights = text
		}
		s.tracer.Trace("synthesizer", "sql extracted", map[string]interface{}{"sql": sqlValue})
		return
	}

	if _, ok := obj["query_id"]; ok {
		// placeholder row set, replaced once the SQL actually executes
		result.Rows = []map[string]interface{}{obj}
	}
}

func (s *Synthesizer) appendRawToolResult(ri agentapi.ResultItem, result *SynthesizedResult) {
	var rendered string
	switch ri.Type {
	case agentapi.ResultItemJSON:
		rendered = string(ri.JSON)
	case agentapi.ResultItemCSV:
		rendered = ri.CSV
	}
	if rendered == "" {
		return
	}
	if result.Insights != "" {
		result.Insights += "\n"
	}
	result.Insights += "Tool result: " + rendered
}

func (s *Synthesizer) extractCharts(acc *Accumulator, result *SynthesizedResult) {
	for _, item := range acc.Charts() {
		chart, ok := item.(agentapi.ChartContent)
		if !ok || strings.TrimSpace(chart.Spec) == "" {
			continue
		}
		var spec map[string]interface{}
		if err := json.Unmarshal([]byte(chart.Spec), &spec); err != nil {
			log.Warn().Err(err).Msg("Could not parse chart specification, skipping")
			continue
		}
		result.Charts = append(result.Charts, ChartSpec{Type: "chart-spec", Spec: spec})
		if result.Insights != "" {
			result.Insights += "\n"
		}
		result.Insights += insightChartNote
	}
}

// runSQL triggers the warehouse execution of the extracted SQL. Failures
// here are never fatal to the query: the caller still gets a result, with
// the failure folded into insights and prior rows left untouched.
func (s *Synthesizer) runSQL(ctx context.Context, result *SynthesizedResult) {
	if s.executor == nil {
		log.Warn().Msg("SQL extracted but no warehouse executor configured")
		prefixInsights(result, insightFailedPrefix+"no warehouse executor configured")
		return
	}

	s.tracer.Trace("synthesizer", "executing sql", map[string]interface{}{"sql": result.SQL})

	rows, err := s.executor.ExecuteQuery(ctx, result.SQL)
	if err != nil {
		log.Warn().Err(err).Str("sql", result.SQL).Msg("SQL execution failed")
		prefixInsights(result, insightFailedPrefix+err.Error())
		return
	}

	if len(rows) == 0 {
		prefixInsights(result, insightNoResultsPrefix)
		return
	}

	result.Rows = rows
	if strings.Contains(strings.ToLower(result.Summary), "sql") {
		result.Summary += fmt.Sprintf(" The query returned %d row(s).", len(rows))
	}
	prefixInsights(result, insightExecutedPrefix)
}

func prefixInsights(result *SynthesizedResult, marker string) {
	if result.Insights == "" {
		result.Insights = marker
		return
	}
	result.Insights = marker + "\n" + result.Insights
}
