package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/config"
	"github.com/go-go-golems/figaro/pkg/events"
)

// recordingSink captures published events so tests can assert on the
// event sequence of a query.
type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) PublishEvent(e events.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []events.EventType {
	var types []events.EventType
	for _, e := range s.events {
		types = append(types, e.Type())
	}
	return types
}

func testRegistry() *config.Registry {
	registry := config.NewRegistry()
	registry.Add(&config.AgentConfiguration{
		Name:                "analyst",
		ResponseInstruction: "Answer {{ .Query }} for {{ .User }}",
		Tools: []agentapi.Tool{
			{ToolSpec: agentapi.ToolSpec{Type: "text_to_sql", Name: "analyst"}},
		},
	})
	return registry
}

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, true, payload["stream"])
		assert.NotEmpty(t, payload["messages"])

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frame := range frames {
			_, _ = fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func deltaSSE(id string, text string) string {
	return fmt.Sprintf("event: message.delta\ndata: {\"id\":%q,\"object\":\"message.delta\",\"delta\":{\"content\":[{\"type\":\"text\",\"text\":%q}]}}\n\n", id, text)
}

func TestRelayStreamingQuery(t *testing.T) {
	frames := []string{
		deltaSSE("d1", "The answer "),
		deltaSSE("d2", "is 42."),
		"event: done\ndata: {}\n\n",
	}
	server := httptest.NewServer(sseHandler(t, frames))
	defer server.Close()

	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil)

	var observed []int
	response, err := r.Query(context.Background(), "analyst", "what is the answer", QueryOptions{
		User: "deep thought",
		Observer: func(delta *agentapi.Delta) {
			observed = append(observed, delta.Index)
		},
	})

	require.NoError(t, err)
	require.Len(t, response.Results, 1)
	assert.Equal(t, "The answer is 42.", response.Main().Summary)
	assert.Equal(t, SourceAgentAPI, response.Main().Source)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestRelayStreamingWithSQLExecution(t *testing.T) {
	frames := []string{
		deltaSSE("d1", "Here is the SQL."),
		"event: message.delta\ndata: {\"id\":\"d2\",\"delta\":{\"content\":[{\"type\":\"tool_results\",\"tool_results\":{\"content\":[{\"type\":\"json\",\"json\":{\"sql\":\"SELECT 1\",\"text\":\"one row\"}}]}}]}}\n\n",
		"event: done\ndata: {}\n\n",
	}
	server := httptest.NewServer(sseHandler(t, frames))
	defer server.Close()

	executor := &fakeExecutor{rows: []map[string]interface{}{{"1": 1}}}
	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), executor)

	response, err := r.Query(context.Background(), "analyst", "count to one", QueryOptions{})
	require.NoError(t, err)

	result := response.Main()
	assert.Equal(t, "SELECT 1", result.SQL)
	assert.Equal(t, []map[string]interface{}{{"1": 1}}, result.Rows)
	assert.Equal(t, []string{"SELECT 1"}, executor.executed)
}

func TestRelayBufferedResponse(t *testing.T) {
	blob := deltaSSE("d1", "Buffered answer.") + "event: done\ndata: {}\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Content-Length", fmt.Sprint(len(blob)))
		_, _ = w.Write([]byte(blob))
	}))
	defer server.Close()

	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil)

	response, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Buffered answer.", response.Main().Summary)
}

func TestRelaySingleJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"m1","object":"message","message":{"content":[{"type":"text","text":"JSON answer."}]}}`)
	}))
	defer server.Close()

	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil)

	response, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "JSON answer.", response.Main().Summary)
}

func TestRelayUnknownAgentIsConfigurationError(t *testing.T) {
	client := agentapi.NewClient("http://unused.invalid", agentapi.NewStaticTokenProvider("t"))
	r := NewRelay(client, config.NewRegistry(), nil)

	response, err := r.Query(context.Background(), "nope", "anything", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceConfigurationError, response.Main().Source)
	assert.Contains(t, response.Main().Summary, "nope")
}

func TestRelayAuthFailureFallsThroughToFallbackQuery(t *testing.T) {
	executor := &fakeExecutor{rows: []map[string]interface{}{{"recent": "row"}}}
	client := agentapi.NewClient("http://unused.invalid", agentapi.NewStaticTokenProvider(""))
	r := NewRelay(client, testRegistry(), executor,
		WithFallbackSQL("SELECT recent FROM results"))

	response, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{})
	require.NoError(t, err)

	result := response.Main()
	assert.Equal(t, SourceFallbackQuery, result.Source)
	assert.Equal(t, []map[string]interface{}{{"recent": "row"}}, result.Rows)
	assert.Equal(t, []string{"SELECT recent FROM results"}, executor.executed)
}

func TestRelayEverythingFailingYieldsErrorFallback(t *testing.T) {
	client := agentapi.NewClient("http://unused.invalid", agentapi.NewStaticTokenProvider(""))
	r := NewRelay(client, testRegistry(), nil)

	response, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceErrorFallback, response.Main().Source)
}

func TestRelayMidStreamTransportErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = fmt.Fprint(w, deltaSSE("d1", "partial answer"))
		flusher.Flush()
		// drop the connection mid-stream
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil, WithEventSinks(sink))

	var observed []int
	_, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{
		Observer: func(delta *agentapi.Delta) {
			observed = append(observed, delta.Index)
		},
	})

	// a broken transport is the one failure class that surfaces as an error
	require.Error(t, err)
	assert.Equal(t, []int{1}, observed, "deltas emitted before the cut stand")
	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypeDelta,
		events.EventTypeError,
	}, sink.types())
}

func TestRelayCancellationPublishesInterrupt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = fmt.Fprint(w, deltaSSE("d1", "partial answer"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil, WithEventSinks(sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := r.Query(ctx, "analyst", "anything", QueryOptions{
		Observer: func(*agentapi.Delta) { cancel() },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypeDelta,
		events.EventTypeInterrupt,
	}, sink.types())
}

func TestRelayJSONResponseObserverPanicIsRecovered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"m1","object":"message","message":{"content":[{"type":"text","text":"JSON answer."}]}}`)
	}))
	defer server.Close()

	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil)

	var response *Response
	var err error
	require.NotPanics(t, func() {
		response, err = r.Query(context.Background(), "analyst", "anything", QueryOptions{
			Observer: func(*agentapi.Delta) { panic("observer failure") },
		})
	})

	require.NoError(t, err)
	assert.Equal(t, "JSON answer.", response.Main().Summary)
}

func TestRelayReasoningCaptureProducesMultiMessage(t *testing.T) {
	frames := []string{
		"event: message.delta\ndata: {\"id\":\"d1\",\"delta\":{\"content\":[{\"type\":\"thinking\",\"thinking\":{\"text\":\"pondering deeply\"}},{\"type\":\"text\",\"text\":\"The answer.\"}]}}\n\n",
		"event: done\ndata: {}\n\n",
	}
	server := httptest.NewServer(sseHandler(t, frames))
	defer server.Close()

	client := agentapi.NewClient(server.URL, agentapi.NewStaticTokenProvider("test-token"))
	r := NewRelay(client, testRegistry(), nil, WithReasoningCapture(true))

	response, err := r.Query(context.Background(), "analyst", "anything", QueryOptions{})
	require.NoError(t, err)

	require.True(t, response.MultiMessage)
	require.Len(t, response.Results, 2)
	assert.Equal(t, "The answer.", response.Results[0].Summary)
	assert.Equal(t, "pondering deeply", response.Results[1].Summary)
}
