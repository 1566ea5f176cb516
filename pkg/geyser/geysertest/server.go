// Package geysertest provides an in-memory Geyser server for tests.
package geysertest

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/shivanshkc/feedrace/pkg/geyser"
)

// Endpoint is the URL to pass to geyser.Dial together with Server.DialOption.
const Endpoint = "http://bufnet"

// Session is one Subscribe call as seen by the server.
type Session struct {
	// Method is the full gRPC method name that was invoked.
	Method string
	// Token is the x-token metadata value, empty if none was sent.
	Token string
	// Request is the raw first SubscribeRequest.
	Request []byte

	stream grpc.ServerStream
}

// Handler serves one session. Returning ends the stream with the returned error's status.
type Handler func(s *Session) error

// Server is a Geyser server listening on an in-memory connection.
type Server struct {
	lis *bufconn.Listener
	srv *grpc.Server
}

// NewServer starts a server that serves every Subscribe call with h.
func NewServer(h Handler) *Server {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(geyser.Codec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, _ := grpc.MethodFromServerStream(stream)
			session := &Session{Method: method, stream: stream}

			if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
				if tokens := md.Get("x-token"); len(tokens) > 0 {
					session.Token = tokens[0]
				}
			}

			var frame geyser.Frame
			if err := stream.RecvMsg(&frame); err != nil {
				return err
			}
			session.Request = frame.Data

			return h(session)
		}),
	)

	go func() { _ = srv.Serve(lis) }()
	return &Server{lis: lis, srv: srv}
}

// DialOption routes geyser.Dial to this server.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// Close stops the server, breaking every open stream.
func (s *Server) Close() {
	s.srv.Stop()
}

// Context is the context of the session's stream.
func (s *Session) Context() context.Context {
	return s.stream.Context()
}

// Recv reads the next raw SubscribeRequest sent by the client.
func (s *Session) Recv() ([]byte, error) {
	var frame geyser.Frame
	if err := s.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame.Data, nil
}

// SendTransaction sends a transaction update with the given signature and slot.
func (s *Session) SendTransaction(signature []byte, slot uint64) error {
	return s.send(TransactionUpdate(signature, slot))
}

// SendPing sends a ping update.
func (s *Session) SendPing() error {
	return s.send(message(6, nil))
}

// SendSlot sends a slot update, which subscribers are expected to ignore.
func (s *Session) SendSlot(slot uint64) error {
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, slot)
	return s.send(message(3, body))
}

func (s *Session) send(data []byte) error {
	return s.stream.SendMsg(&geyser.Frame{Data: data})
}

// TransactionUpdate encodes a SubscribeUpdate carrying a transaction.
func TransactionUpdate(signature []byte, slot uint64) []byte {
	var info []byte
	info = protowire.AppendTag(info, 1, protowire.BytesType)
	info = protowire.AppendBytes(info, signature)

	var tx []byte
	tx = protowire.AppendTag(tx, 1, protowire.BytesType)
	tx = protowire.AppendBytes(tx, info)
	tx = protowire.AppendTag(tx, 2, protowire.VarintType)
	tx = protowire.AppendVarint(tx, slot)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "filter")
	return append(b, message(4, tx)...)
}

// message encodes a single length-delimited field.
func message(num protowire.Number, body []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}
