// Package gateway implements source.Source against a messaging gateway node.
// Pulls and writes are JSON over HTTP; live updates arrive over WebSocket
// streams that reconnect with exponential backoff.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s", e.Status, e.Message)
}

// ErrUnauthorized matches APIErrors with status 401 or 403.
var ErrUnauthorized = errors.New("gateway: unauthorized")

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the gateway root, e.g. http://127.0.0.1:5556.
	BaseURL string
	Token   string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// MaxReconnectDelay caps the stream reconnect backoff.
	MaxReconnectDelay time.Duration
	Logger            *zap.Logger
}

// Client talks to one gateway on behalf of one inbox.
type Client struct {
	base       string
	token      string
	http       *http.Client
	maxBackoff time.Duration
	logger     *zap.Logger
}

var _ source.Source = (*Client)(nil)

// New creates a client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url %q: scheme must be http or https", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	maxBackoff := opts.MaxReconnectDelay
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:       strings.TrimRight(u.String(), "/"),
		token:      opts.Token,
		http:       hc,
		maxBackoff: maxBackoff,
		logger:     logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) ListConversations(ctx context.Context, opts source.ListOptions) ([]model.RemoteConversation, error) {
	path := "/v1/conversations"
	if opts.Incremental() {
		path += "?created_after_ns=" + strconv.FormatInt(opts.CreatedAfter, 10)
	}
	var resp conversationList
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.RemoteConversation, 0, len(resp.Conversations))
	for _, wc := range resp.Conversations {
		out = append(out, wc.model())
	}
	return out, nil
}

func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp messageList
	if err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		out = append(out, wm.model())
	}
	return out, nil
}

func (c *Client) CreateDirectConversation(ctx context.Context, memberID string) (model.RemoteConversation, error) {
	var resp wireConversation
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/direct", createDirectRequest{MemberID: memberID}, &resp); err != nil {
		return model.RemoteConversation{}, err
	}
	return resp.model(), nil
}

func (c *Client) CreateGroupConversation(ctx context.Context, memberIDs []string, meta model.Metadata) (model.RemoteConversation, error) {
	req := createGroupRequest{
		MemberIDs:   memberIDs,
		Name:        meta.Name,
		Description: meta.Description,
		ImageURL:    meta.ImageURL,
	}
	var resp wireConversation
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/group", req, &resp); err != nil {
		return model.RemoteConversation{}, err
	}
	return resp.model(), nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, content model.Content) (model.Message, error) {
	req := sendRequest{ContentType: string(content.Type), Content: content.Payload}
	var resp wireMessage
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", req, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.model(), nil
}

func (c *Client) ListInstallations(ctx context.Context) ([]model.Installation, error) {
	var resp installationList
	if err := c.do(ctx, http.MethodGet, "/v1/installations", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Installation, 0, len(resp.Installations))
	for _, wi := range resp.Installations {
		out = append(out, model.Installation{ID: wi.ID, CreatedAt: wi.CreatedAtNs, Current: wi.Current})
	}
	return out, nil
}

func (c *Client) RevokeInstallations(ctx context.Context, installationIDs []string) error {
	return c.do(ctx, http.MethodPost, "/v1/installations/revoke", revokeRequest{InstallationIDs: installationIDs}, nil)
}
