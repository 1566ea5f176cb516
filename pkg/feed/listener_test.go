package feed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shivanshkc/feedrace/pkg/feed"
	"github.com/shivanshkc/feedrace/pkg/geyser"
	"github.com/shivanshkc/feedrace/pkg/geyser/geysertest"
	"github.com/shivanshkc/feedrace/pkg/race"
)

var testFilter = feed.Filter{Account: "Acc1", Commitment: geyser.Confirmed}

// signature returns a deterministic 64-byte signature.
func signature(i byte) []byte {
	sig := make([]byte, 64)
	for j := range sig {
		sig[j] = i
	}
	return sig
}

// geyserSource starts a Geyser server that serves h and returns a listener for it.
func geyserSource(t *testing.T, name string, h geysertest.Handler) *feed.Listener {
	t.Helper()
	srv := geysertest.NewServer(h)
	t.Cleanup(srv.Close)
	src := feed.Source{Name: name, URL: geysertest.Endpoint}
	return feed.NewListener(src, testFilter, nil, feed.WithGRPCDialOptions(srv.DialOption()))
}

// sendAll sends the given signatures and closes the stream cleanly.
func sendAll(sigs ...[]byte) geysertest.Handler {
	return func(s *geysertest.Session) error {
		for i, sig := range sigs {
			if err := s.SendTransaction(sig, uint64(i)); err != nil {
				return err
			}
		}
		return nil
	}
}

func newTable(t *testing.T, names ...string) *race.Table {
	t.Helper()
	table, err := race.New(names)
	require.NoError(t, err)
	return table
}

func TestListener_Listen(t *testing.T) {
	t.Run("Two Sources Resolve Every Shared Transaction", func(t *testing.T) {
		sigs := [][]byte{signature(1), signature(2), signature(3)}
		a := geyserSource(t, "a", sendAll(sigs...))
		b := geyserSource(t, "b", sendAll(sigs...))
		table := newTable(t, "a", "b")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, l := range []*feed.Listener{a, b} {
			wg.Add(1)
			go func(i int, l *feed.Listener) {
				defer wg.Done()
				errs[i] = l.Listen(ctx, table)
			}(i, l)
		}
		wg.Wait()

		assert.NoError(t, errs[0])
		assert.NoError(t, errs[1])

		stats := table.Snapshot()
		assert.EqualValues(t, 3, stats.TotalRaces)
		assert.Zero(t, stats.Pending)
		assert.Equal(t, stats.TotalRaces, stats.Sources[0].Wins+stats.Sources[1].Wins)
	})

	t.Run("Pings And Other Updates Are Ignored", func(t *testing.T) {
		l := geyserSource(t, "a", func(s *geysertest.Session) error {
			_ = s.SendSlot(5)
			_ = s.SendPing()
			if _, err := s.Recv(); err != nil {
				return err
			}
			return s.SendTransaction(signature(9), 6)
		})
		table := newTable(t, "a", "b")

		require.NoError(t, l.Listen(context.Background(), table))

		records, ok := table.Pending(base58.Encode(signature(9)))
		require.True(t, ok)
		require.Len(t, records, 1)
		assert.Equal(t, "a", records[0].Source)
		assert.Equal(t, 1, table.Len())
	})

	t.Run("Duplicate Notifications Do Not Count Twice", func(t *testing.T) {
		l := geyserSource(t, "a", sendAll(signature(4), signature(4)))
		table := newTable(t, "a", "b")

		require.NoError(t, l.Listen(context.Background(), table))

		records, ok := table.Pending(base58.Encode(signature(4)))
		require.True(t, ok)
		assert.Len(t, records, 1)
		assert.EqualValues(t, 1, table.Snapshot().Sources[0].Duplicates)
	})

	t.Run("Mid-Stream Failure Is A Stream Error", func(t *testing.T) {
		l := geyserSource(t, "a", func(s *geysertest.Session) error {
			_ = s.SendTransaction(signature(1), 1)
			return status.Error(codes.Internal, "boom")
		})

		err := l.Listen(context.Background(), newTable(t, "a", "b"))
		assert.ErrorIs(t, err, feed.ErrStream)
		assert.ErrorContains(t, err, geysertest.Endpoint, "diagnostics identify the endpoint")
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("Closed Recorder Ends Listener Quietly", func(t *testing.T) {
		l := geyserSource(t, "a", func(s *geysertest.Session) error {
			_ = s.SendTransaction(signature(1), 1)
			<-s.Context().Done()
			return nil
		})
		table := newTable(t, "a", "b")
		table.Close()

		assert.NoError(t, l.Listen(context.Background(), table))
	})

	t.Run("Cancellation", func(t *testing.T) {
		l := geyserSource(t, "a", func(s *geysertest.Session) error {
			<-s.Context().Done()
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := l.Listen(ctx, newTable(t, "a", "b"))
		assert.Error(t, err)
	})

	t.Run("Unsupported Scheme Is A Connection Error", func(t *testing.T) {
		l := feed.NewListener(feed.Source{Name: "x", URL: "ftp://nowhere"}, testFilter, nil)
		err := l.Listen(context.Background(), newTable(t, "x", "y"))
		assert.ErrorIs(t, err, feed.ErrConnection)
		assert.ErrorContains(t, err, "x (ftp://nowhere)")
	})
}

// wsNode is a fake websocket RPC node that replies to the subscription with
// reply and then sends each message.
func wsNode(t *testing.T, reply string, messages ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()

		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(reply))
		for _, msg := range messages {
			_ = conn.Write(r.Context(), websocket.MessageText, []byte(msg))
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func logsNotification(sig, errValue string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"context":{"slot":1},`+
		`"value":{"signature":"%s","err":%s,"logs":[]}},"subscription":1}}`, sig, errValue)
}

func TestListener_Websocket(t *testing.T) {
	t.Run("Failed Transactions Are Skipped", func(t *testing.T) {
		ok := base58.Encode(signature(1))
		failed := base58.Encode(signature(2))
		endpoint := wsNode(t, `{"jsonrpc":"2.0","result":1,"id":1}`,
			logsNotification(ok, "null"),
			logsNotification(failed, `{"InstructionError":[0,"Custom"]}`),
		)

		l := feed.NewListener(feed.Source{Name: "ws", URL: endpoint}, testFilter, nil)
		table := newTable(t, "ws", "other")

		err := l.Listen(context.Background(), table)
		assert.ErrorIs(t, err, feed.ErrStream, "the node closing the socket ends the listener")

		_, pending := table.Pending(ok)
		assert.True(t, pending)
		_, pending = table.Pending(failed)
		assert.False(t, pending)
	})

	t.Run("Rejected Subscription", func(t *testing.T) {
		endpoint := wsNode(t, `{"jsonrpc":"2.0","error":{"code":-32602,"message":"Invalid param"},"id":1}`)

		l := feed.NewListener(feed.Source{Name: "ws", URL: endpoint}, testFilter, nil)
		err := l.Listen(context.Background(), newTable(t, "ws", "other"))
		assert.ErrorIs(t, err, feed.ErrSubscription)
	})

	t.Run("Unreachable Node", func(t *testing.T) {
		l := feed.NewListener(feed.Source{Name: "ws", URL: "ws://127.0.0.1:1"}, testFilter, nil)
		err := l.Listen(context.Background(), newTable(t, "ws", "other"))
		assert.ErrorIs(t, err, feed.ErrConnection)
	})
}

func TestSignatures(t *testing.T) {
	raw := signature(7)
	key := feed.EncodeSignature(raw)
	assert.Equal(t, base58.Encode(raw), key)
	assert.Equal(t, key, feed.NormalizeSignature(key))

	assert.Equal(t, base58.Encode([]byte{1, 2, 3}), feed.EncodeSignature([]byte{1, 2, 3}))
	assert.Equal(t, "not-base58!", feed.NormalizeSignature("not-base58!"))
}
