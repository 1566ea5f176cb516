// Package solws subscribes to transaction logs over the Solana JSON-RPC
// websocket API.
package solws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/shivanshkc/feedrace/pkg/streams"
)

// readLimit bounds a single websocket message. Log notifications of large transactions run to a few hundred KiB.
const readLimit = 16 << 20

// Notification is one logsNotification, or the final error of the subscription.
type Notification struct {
	// Signature is the base58 transaction signature as sent by the node.
	Signature string
	Slot      uint64
	// Failed is true when the transaction failed on chain.
	Failed bool

	// Timestamp is the local time the message was read off the socket.
	Timestamp time.Time
	// Err is set on the final notification when the subscription failed.
	Err error
}

// Client is a websocket connection to one RPC node.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a ws:// or wss:// endpoint. The token, if any, is sent as
// an x-token header on the handshake.
func Dial(ctx context.Context, endpoint, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("x-token", token)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	conn.SetReadLimit(readLimit)

	return &Client{conn: conn}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// LogsSubscribe subscribes to the logs of every transaction that mentions the
// given account, at the given commitment, and waits for the node to confirm.
//
// The returned stream ends after a notification carrying Err. Canceling ctx
// closes the connection.
func (c *Client) LogsSubscribe(ctx context.Context, mentions, commitment string) (streams.Stream[Notification], error) {
	request, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []any{
			map[string]any{"mentions": []string{mentions}},
			map[string]any{"commitment": commitment},
		},
	})
	if err != nil {
		return streams.Stream[Notification]{}, fmt.Errorf("failed to marshal subscription request: %w", err)
	}

	if err := c.conn.Write(ctx, websocket.MessageText, request); err != nil {
		return streams.Stream[Notification]{}, fmt.Errorf("failed to send subscription request: %w", err)
	}

	// The first reply to our id is the subscription confirmation.
	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			return streams.Stream[Notification]{}, fmt.Errorf("failed to read subscription reply: %w", err)
		}

		var reply rpcResponse
		if err := json.Unmarshal(msg, &reply); err != nil {
			return streams.Stream[Notification]{}, fmt.Errorf("failed to unmarshal subscription reply: %w", err)
		}
		if reply.Method != "" || reply.ID != 1 {
			continue
		}
		if reply.Error != nil {
			return streams.Stream[Notification]{}, fmt.Errorf("subscription rejected: %w", reply.Error)
		}
		break
	}

	notifications := make(chan Notification, 100)
	go c.read(ctx, notifications)

	return streams.New(notifications), nil
}

// read is the producer goroutine behind a subscription.
func (c *Client) read(ctx context.Context, notifications chan<- Notification) {
	defer close(notifications)

	publish := func(n Notification) bool {
		select {
		case notifications <- n:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		_, msg, err := c.conn.Read(ctx)
		timestamp := time.Now() // Capture timestamp immediately after read.

		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			publish(Notification{Err: err, Timestamp: timestamp})
			return
		}

		var reply rpcResponse
		if err := json.Unmarshal(msg, &reply); err != nil {
			publish(Notification{Err: fmt.Errorf("failed to unmarshal notification: %w", err), Timestamp: timestamp})
			return
		}
		if reply.Method != "logsNotification" {
			continue
		}

		value := reply.Params.Result.Value
		notification := Notification{
			Signature: value.Signature,
			Slot:      reply.Params.Result.Context.Slot,
			Failed:    len(value.Err) > 0 && string(value.Err) != "null",
			Timestamp: timestamp,
		}
		if !publish(notification) {
			return
		}
	}
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
