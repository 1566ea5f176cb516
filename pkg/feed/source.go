// Package feed connects to upstream providers and turns their transaction
// notifications into detections.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"google.golang.org/grpc"

	"github.com/shivanshkc/feedrace/pkg/geyser"
	"github.com/shivanshkc/feedrace/pkg/solws"
	"github.com/shivanshkc/feedrace/pkg/streams"
)

// Errors that end a listener. They are always wrapped with the source name and endpoint.
var (
	// ErrConnection covers endpoint parsing, transport and TLS setup.
	ErrConnection = errors.New("connection failed")
	// ErrSubscription covers the initial subscribe call.
	ErrSubscription = errors.New("subscription failed")
	// ErrStream covers failures after the subscription was established.
	ErrStream = errors.New("stream failed")
)

// Source is one configured upstream provider.
type Source struct {
	Name string `yaml:"name"`
	// URL selects the transport: http/https for Geyser gRPC, ws/wss for JSON-RPC websocket.
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Filter selects which transactions are streamed.
type Filter struct {
	// Account is the base58 address every streamed transaction must mention.
	Account       string
	Commitment    geyser.Commitment
	IncludeFailed bool
}

// Notification is a transport-independent transaction notification.
type Notification struct {
	// Key is the base58 transaction signature.
	Key  string
	Slot uint64
	// ReceivedAt is the local time the notification was read off the wire.
	ReceivedAt time.Time
	// Err is set on the final notification when the stream failed.
	Err error
}

// Option customizes how a source is dialed.
type Option func(*options)

type options struct {
	grpcDialOptions []grpc.DialOption
}

// WithGRPCDialOptions appends dial options for gRPC sources.
func WithGRPCDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.grpcDialOptions = append(o.grpcDialOptions, opts...) }
}

// Subscription is an open stream of notifications from one source.
type Subscription struct {
	streams.Stream[Notification]
	close func() error
}

// Close releases the underlying connection.
func (s *Subscription) Close() error {
	return s.close()
}

// Subscribe connects to src with the transport its URL scheme selects and
// subscribes with filter. Errors wrap ErrConnection or ErrSubscription.
func Subscribe(ctx context.Context, src Source, filter Filter, opts ...Option) (*Subscription, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, src.wrap(ErrConnection, err)
	}

	switch u.Scheme {
	case "http", "https":
		return subscribeGeyser(ctx, src, filter, o)
	case "ws", "wss":
		return subscribeWebsocket(ctx, src, filter)
	default:
		return nil, src.wrap(ErrConnection, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

func subscribeGeyser(ctx context.Context, src Source, filter Filter, o options) (*Subscription, error) {
	client, err := geyser.Dial(src.URL, src.Token, o.grpcDialOptions...)
	if err != nil {
		return nil, src.wrap(ErrConnection, err)
	}

	txFilter := geyser.TransactionFilter{AccountInclude: []string{filter.Account}}
	if !filter.IncludeFailed {
		failed := false
		txFilter.Failed = &failed
	}

	updates, err := client.Subscribe(ctx, geyser.SubscribeRequest{
		Transactions: map[string]geyser.TransactionFilter{"filter": txFilter},
		Commitment:   filter.Commitment,
	})
	if err != nil {
		_ = client.Close()
		return nil, src.wrap(ErrSubscription, err)
	}

	transactions := streams.Filter(updates, func(u geyser.Update) bool {
		return u.Err != nil || u.Kind == geyser.KindTransaction
	})
	notifications := streams.Map(transactions, func(u geyser.Update) Notification {
		if u.Err != nil {
			return Notification{Err: u.Err, ReceivedAt: u.Timestamp}
		}
		return Notification{Key: EncodeSignature(u.Signature), Slot: u.Slot, ReceivedAt: u.Timestamp}
	})

	return &Subscription{Stream: notifications, close: client.Close}, nil
}

func subscribeWebsocket(ctx context.Context, src Source, filter Filter) (*Subscription, error) {
	client, err := solws.Dial(ctx, src.URL, src.Token)
	if err != nil {
		return nil, src.wrap(ErrConnection, err)
	}

	logs, err := client.LogsSubscribe(ctx, filter.Account, filter.Commitment.String())
	if err != nil {
		_ = client.Close()
		return nil, src.wrap(ErrSubscription, err)
	}

	if !filter.IncludeFailed {
		logs = streams.Filter(logs, func(n solws.Notification) bool { return n.Err != nil || !n.Failed })
	}
	notifications := streams.Map(logs, func(n solws.Notification) Notification {
		if n.Err != nil {
			return Notification{Err: n.Err, ReceivedAt: n.Timestamp}
		}
		return Notification{Key: NormalizeSignature(n.Signature), Slot: n.Slot, ReceivedAt: n.Timestamp}
	})

	return &Subscription{Stream: notifications, close: client.Close}, nil
}

// wrap classifies err and tags it with the source, so diagnostics identify the offending endpoint.
func (s Source) wrap(kind, err error) error {
	return fmt.Errorf("%w: %s (%s): %w", kind, s.Name, s.URL, err)
}

// EncodeSignature renders a raw signature as base58.
func EncodeSignature(raw []byte) string {
	if len(raw) == len(solana.Signature{}) {
		return solana.SignatureFromBytes(raw).String()
	}
	return base58.Encode(raw)
}

// NormalizeSignature returns the canonical base58 form of a signature, so that
// keys from different transports compare equal. Unparseable input is returned as is.
func NormalizeSignature(s string) string {
	sig, err := solana.SignatureFromBase58(s)
	if err != nil {
		return s
	}
	return sig.String()
}
