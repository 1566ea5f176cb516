// Package geyser is a minimal client for the Yellowstone Geyser gRPC
// Subscribe stream, limited to transaction subscriptions.
package geyser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/shivanshkc/feedrace/pkg/streams"
)

const (
	subscribeMethod = "/geyser.Geyser/Subscribe"
	// tokenHeader carries the access token as per-call metadata.
	tokenHeader = "x-token"
	// maxRecvMsgSize allows for large block and transaction updates.
	maxRecvMsgSize = 1024 * 1024 * 1024
)

var subscribeDesc = &grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// Client is a connection to one Geyser endpoint.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial creates a client for the given endpoint URL. An "https" scheme selects
// TLS with the system roots; "http" selects plaintext. A missing port defaults
// to the scheme's well-known port.
//
// The connection is established lazily, so an unreachable endpoint surfaces
// on Subscribe.
func Dial(endpoint, token string, opts ...grpc.DialOption) (*Client, error) {
	target, creds, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxRecvMsgSize),
			grpc.ForceCodec(Codec{}),
		),
	}

	conn, err := grpc.NewClient(target, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", endpoint, err)
	}

	return &Client{conn: conn, token: token}, nil
}

// parseEndpoint turns a URL into a gRPC target and transport credentials.
func parseEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	var creds credentials.TransportCredentials
	var port string
	switch u.Scheme {
	case "https":
		creds = credentials.NewClientTLSFromCert(nil, "")
		port = "443"
	case "http":
		creds = insecure.NewCredentials()
		port = "80"
	default:
		return "", nil, fmt.Errorf("endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), port)
	}

	// passthrough keeps the grpc.Dial behavior of handing the address straight to the dialer.
	return "passthrough:///" + host, creds, nil
}

// Subscribe opens the Subscribe stream and sends req.
//
// The returned stream yields every update except pings, which are answered
// internally. It ends after an update carrying Err, or when the server closes
// the stream cleanly. Canceling ctx tears the stream down.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (streams.Stream[Update], error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, tokenHeader, c.token)
	}

	stream, err := c.conn.NewStream(ctx, subscribeDesc, subscribeMethod)
	if err != nil {
		return streams.Stream[Update]{}, fmt.Errorf("failed to open subscribe stream: %w", err)
	}

	if err := stream.SendMsg(&Frame{Data: req.Marshal()}); err != nil {
		// On io.EOF the real status is only available from RecvMsg.
		if errors.Is(err, io.EOF) {
			err = stream.RecvMsg(&Frame{})
		}
		return streams.Stream[Update]{}, fmt.Errorf("failed to send subscribe request: %w", err)
	}

	updates := make(chan Update, 100)
	go readUpdates(ctx, stream, updates)

	return streams.New(updates), nil
}

// readUpdates is the producer goroutine behind a subscription.
func readUpdates(ctx context.Context, stream grpc.ClientStream, updates chan<- Update) {
	defer close(updates)

	publish := func(u Update) bool {
		select {
		case updates <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var frame Frame
		err := stream.RecvMsg(&frame)
		timestamp := time.Now() // Capture timestamp immediately after read.

		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			if !errors.Is(err, io.EOF) {
				publish(Update{Err: err, Timestamp: timestamp})
			}
			return
		}

		update, err := DecodeUpdate(frame.Data)
		if err != nil {
			publish(Update{Err: fmt.Errorf("failed to decode update: %w", err), Timestamp: timestamp})
			return
		}
		update.Timestamp = timestamp

		if update.Kind == KindPing {
			// A failed send also breaks the stream, so the next RecvMsg reports it.
			_ = stream.SendMsg(&Frame{Data: pingRequest(1)})
			continue
		}

		if !publish(update) {
			return
		}
	}
}

// Close tears down the connection and every stream on it.
func (c *Client) Close() error {
	return c.conn.Close()
}
