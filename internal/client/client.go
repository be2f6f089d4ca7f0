package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
)

// Client is a conversation connection to a Helmsman server.
type Client struct {
	conn *websocket.Conn
}

// Dial opens a conversation for the given working directory. serverURL is
// the base URL, e.g. "ws://localhost:8080". projectID and taskID are
// optional bindings.
func Dial(ctx context.Context, serverURL, dir, projectID, taskID string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	u.Path = "/ws/conversation"
	q := u.Query()
	q.Set("dir", dir)
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if taskID != "" {
		q.Set("task_id", taskID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial conversation: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send publishes a chat message with optional history.
func (c *Client) Send(ctx context.Context, content string, history []ws.HistoryEntry) error {
	return c.write(ctx, ws.ClientMessage{Type: ws.TypeChat, Content: content, History: history})
}

// Ping sends a liveness check; the server answers with a pong message.
func (c *Client) Ping(ctx context.Context) error {
	return c.write(ctx, ws.ClientMessage{Type: ws.TypePing})
}

// Next blocks for the next server message.
func (c *Client) Next(ctx context.Context) (ws.ServerMessage, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return ws.ServerMessage{}, fmt.Errorf("read conversation: %w", err)
	}
	var msg ws.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ws.ServerMessage{}, fmt.Errorf("decode server message: %w", err)
	}
	return msg, nil
}

// Close closes the connection, which tears down the server-side session.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) write(ctx context.Context, msg ws.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal client message: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	return nil
}
