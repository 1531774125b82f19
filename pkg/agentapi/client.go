package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoToken is returned when the token provider could not produce a bearer
// credential. Callers treat this as "fall through", not as a hard failure.
var ErrNoToken = errors.New("no agent API token available")

// Client issues requests against the agent API endpoint.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	tokenProvider TokenProvider
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(endpoint string, tokenProvider TokenProvider, options ...ClientOption) *Client {
	ret := &Client{
		httpClient:    &http.Client{},
		endpoint:      endpoint,
		tokenProvider: tokenProvider,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

type ResponseKind string

const (
	// ResponseKindStream is a live chunked SSE stream.
	ResponseKindStream ResponseKind = "stream"
	// ResponseKindJSON is a single JSON message object.
	ResponseKindJSON ResponseKind = "json"
	// ResponseKindBuffered is a single fully-buffered SSE text blob.
	ResponseKindBuffered ResponseKind = "buffered"
)

// CallResult is the raw outcome of one agent API call. Exactly one of
// Stream / JSON / Buffered is populated, per Kind. For the stream kind the
// caller owns Stream and must close it.
type CallResult struct {
	Kind     ResponseKind
	Stream   io.ReadCloser
	JSON     []byte
	Buffered string
}

// Send POSTs the payload with streaming enabled and sniffs the response
// shape: a text/event-stream body with chunked transfer is handed back as a
// live stream, application/json as a single message object, and anything
// else is read whole as a buffered SSE blob.
func (c *Client) Send(ctx context.Context, payload map[string]interface{}) (*CallResult, error) {
	token, err := c.tokenProvider.GetAccessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not obtain agent API token")
	}
	if token == "" {
		return nil, ErrNoToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "agent API request failed")
	}
	log.Debug().
		Int("status", resp.StatusCode).
		Dur("headers_after", time.Since(start)).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("Agent API responded")

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var errorResp struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Message != "" {
			return nil, errors.Errorf("agent API error (%d): %s", resp.StatusCode, errorResp.Message)
		}
		return nil, errors.Errorf("agent API error (%d): %s", resp.StatusCode, string(respBody))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "text/event-stream":
		if isChunked(resp) {
			return &CallResult{Kind: ResponseKindStream, Stream: resp.Body}, nil
		}
		// legacy servers send the whole SSE text in one buffered response
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		blob, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "could not read buffered SSE response")
		}
		return &CallResult{Kind: ResponseKindBuffered, Buffered: string(blob)}, nil

	case "application/json":
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "could not read JSON response")
		}
		return &CallResult{Kind: ResponseKindJSON, JSON: respBody}, nil

	default:
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		blob, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "could not read response body")
		}
		return &CallResult{Kind: ResponseKindBuffered, Buffered: string(blob)}, nil
	}
}

func isChunked(resp *http.Response) bool {
	for _, te := range resp.TransferEncoding {
		if te == "chunked" {
			return true
		}
	}
	// Without a Content-Length the body length is unknown, treat as a stream.
	return resp.ContentLength < 0
}

// messageEnvelope mirrors the single JSON (non-streaming) response shape.
type messageEnvelope struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Message struct {
		Content []json.RawMessage `json:"content"`
	} `json:"message"`
}

// ParseMessageResponse converts a single JSON message object into one Delta
// so the non-streaming path feeds the exact same routing code as the stream.
func ParseMessageResponse(data []byte, now time.Time) (*Delta, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(err, "could not parse message response")
	}

	delta := &Delta{
		Index:     1,
		Timestamp: now,
		Metadata: DeltaMetadata{
			ID:   envelope.ID,
			Kind: envelope.Object,
		},
	}
	for _, raw := range envelope.Message.Content {
		item, err := DecodeContentItem(raw)
		if err != nil {
			continue
		}
		delta.Content = append(delta.Content, item)
	}
	return delta, nil
}
