package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/relay"
)

// Activity is the subset of the messaging platform's activity object the
// relay cares about.
type Activity struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	From         Actor  `json:"from"`
	Conversation Actor  `json:"conversation"`
}

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Handler answers platform webhook POSTs: it runs the relay on message
// activities and replies with result cards.
type Handler struct {
	relay        *relay.Relay
	defaultAgent string
	rowLimit     int
	queryTimeout time.Duration
}

type HandlerOption func(*Handler)

func WithRowLimit(limit int) HandlerOption {
	return func(h *Handler) {
		h.rowLimit = limit
	}
}

func WithQueryTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.queryTimeout = timeout
	}
}

func NewHandler(r *relay.Relay, defaultAgent string, options ...HandlerOption) *Handler {
	ret := &Handler{
		relay:        r,
		defaultAgent: defaultAgent,
		rowLimit:     10,
		queryTimeout: 120 * time.Second,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var activity Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		log.Warn().Err(err).Msg("Could not decode incoming activity")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if activity.Type != "message" || strings.TrimSpace(activity.Text) == "" {
		// typing indicators, membership changes and the like
		w.WriteHeader(http.StatusOK)
		return
	}

	agentName, query := parseQuery(activity.Text, h.defaultAgent)

	log.Info().
		Str("conversation", activity.Conversation.ID).
		Str("from", activity.From.Name).
		Str("agent", agentName).
		Msg("Handling message activity")

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	response, err := h.relay.Query(ctx, agentName, query, relay.QueryOptions{User: activity.From.Name})
	if err != nil {
		log.Error().Err(err).Msg("Relay query failed")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	reply := map[string]interface{}{
		"type":        "message",
		"attachments": BuildAttachments(response, h.rowLimit),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		log.Warn().Err(err).Msg("Could not write reply activity")
	}
}

// parseQuery peels an optional "@agent-name" prefix off the message text.
func parseQuery(text string, defaultAgent string) (agent string, query string) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "@") {
		parts := strings.SplitN(text, " ", 2)
		if len(parts) == 2 {
			return strings.TrimPrefix(parts[0], "@"), strings.TrimSpace(parts[1])
		}
	}
	return defaultAgent, text
}
