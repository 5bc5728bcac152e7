package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mumblechat/mumble/internal/source"
	"go.uber.org/zap"
)

const (
	dialTimeout   = 15 * time.Second
	readLimit     = 4 << 20
	initialRedial = 250 * time.Millisecond
)

func (c *Client) StreamConversations(ctx context.Context, fn source.EventFunc) (source.Disposer, error) {
	return c.stream(ctx, "/v1/stream/conversations", fn)
}

func (c *Client) StreamMessages(ctx context.Context, fn source.EventFunc) (source.Disposer, error) {
	return c.stream(ctx, "/v1/stream/messages", fn)
}

func (c *Client) wsURL(path string) string {
	u := c.base + path
	u = strings.Replace(u, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}

func (c *Client) dial(ctx context.Context, u string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// stream dials once synchronously so bad configuration surfaces to the
// caller, then keeps the stream open until the disposer is called. Events
// are passed to fn from a single goroutine.
func (c *Client) stream(ctx context.Context, path string, fn source.EventFunc) (source.Disposer, error) {
	u := c.wsURL(path)
	conn, err := c.dial(ctx, u)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = initialRedial
		bo.MaxInterval = c.maxBackoff
		bo.MaxElapsedTime = 0
		bo.Reset()

		for {
			err := c.pump(ctx, conn, fn)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream dropped, reconnecting", zap.String("path", path), zap.Error(err))

			conn = c.redial(ctx, u, bo)
			if conn == nil {
				return
			}
			bo.Reset()
			c.logger.Info("stream reconnected", zap.String("path", path))
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// redial retries until it connects or ctx is done, in which case it returns nil.
func (c *Client) redial(ctx context.Context, u string, bo backoff.BackOff) *websocket.Conn {
	for {
		timer := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		conn, err := c.dial(ctx, u)
		if err == nil {
			return conn
		}
		c.logger.Debug("redial failed", zap.String("url", u), zap.Error(err))
	}
}

func (c *Client) pump(ctx context.Context, conn *websocket.Conn, fn source.EventFunc) error {
	defer func() { _ = conn.CloseNow() }()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		evt, ok := f.event()
		if !ok {
			c.logger.Debug("ignoring stream frame", zap.String("type", f.Type))
			continue
		}
		fn(evt)
	}
}
