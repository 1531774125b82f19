package bot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/agentapi"
	"github.com/go-go-golems/figaro/pkg/config"
	"github.com/go-go-golems/figaro/pkg/relay"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	// An empty registry makes every query resolve to a configuration-error
	// reply, which exercises the webhook round trip without an upstream.
	client := agentapi.NewClient("http://unused.invalid", agentapi.NewStaticTokenProvider("t"))
	return NewHandler(relay.NewRelay(client, config.NewRegistry(), nil), "analyst")
}

func postActivity(t *testing.T, h *Handler, activity Activity) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(activity)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(string(b)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRepliesWithAttachments(t *testing.T) {
	rec := postActivity(t, testHandler(t), Activity{
		Type: "message",
		Text: "show me revenue",
		From: Actor{ID: "u1", Name: "Ada"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var reply struct {
		Type        string       `json:"type"`
		Attachments []Attachment `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "message", reply.Type)
	require.Len(t, reply.Attachments, 1)
	assert.Equal(t, adaptiveCardContentType, reply.Attachments[0].ContentType)
}

func TestHandlerIgnoresNonMessageActivities(t *testing.T) {
	rec := postActivity(t, testHandler(t), Activity{Type: "typing"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandlerIgnoresEmptyText(t *testing.T) {
	rec := postActivity(t, testHandler(t), Activity{Type: "message", Text: "   "})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandlerRejectsNonPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	testHandler(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerRejectsBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	testHandler(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expectedAgent string
		expectedQuery string
	}{
		{"plain text uses default agent", "revenue by region", "analyst", "revenue by region"},
		{"at-prefix selects agent", "@finance revenue by region", "finance", "revenue by region"},
		{"bare at-mention is not an agent", "@finance", "analyst", "@finance"},
		{"surrounding whitespace trimmed", "  @finance   q  ", "finance", "q"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agent, query := parseQuery(tc.text, "analyst")
			assert.Equal(t, tc.expectedAgent, agent)
			assert.Equal(t, tc.expectedQuery, query)
		})
	}
}
