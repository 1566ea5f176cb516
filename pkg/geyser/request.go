package geyser

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Commitment is the confirmation level at which updates are streamed.
type Commitment int32

const (
	Processed Commitment = 0
	Confirmed Commitment = 1
	Finalized Commitment = 2
)

// ParseCommitment parses "processed", "confirmed" or "finalized", case-insensitively.
func ParseCommitment(s string) (Commitment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processed":
		return Processed, nil
	case "confirmed":
		return Confirmed, nil
	case "finalized":
		return Finalized, nil
	default:
		return 0, fmt.Errorf("unknown commitment level %q", s)
	}
}

func (c Commitment) String() string {
	switch c {
	case Processed:
		return "processed"
	case Confirmed:
		return "confirmed"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("commitment(%d)", int32(c))
	}
}

// TransactionFilter selects the transactions a subscription streams.
// Nil pointers leave the server default in place.
type TransactionFilter struct {
	Vote           *bool
	Failed         *bool
	AccountInclude []string
	AccountExclude []string
}

// SubscribeRequest is the subset of geyser.SubscribeRequest used for transaction subscriptions.
type SubscribeRequest struct {
	// Transactions maps a filter name to its filter. Updates carry the names of the filters they matched.
	Transactions map[string]TransactionFilter
	Commitment   Commitment
}

// Field numbers from geyser.proto.
const (
	fieldRequestTransactions protowire.Number = 3
	fieldRequestCommitment   protowire.Number = 6
	fieldRequestPing         protowire.Number = 9

	fieldFilterVote           protowire.Number = 1
	fieldFilterFailed         protowire.Number = 2
	fieldFilterAccountInclude protowire.Number = 3
	fieldFilterAccountExclude protowire.Number = 4

	fieldPingID protowire.Number = 1
)

// Marshal encodes the request in protobuf wire format.
func (r SubscribeRequest) Marshal() []byte {
	names := make([]string, 0, len(r.Transactions))
	for name := range r.Transactions {
		names = append(names, name)
	}
	sort.Strings(names)

	var b []byte
	for _, name := range names {
		// Map fields are encoded as repeated key/value entry messages.
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, r.Transactions[name].marshal())

		b = protowire.AppendTag(b, fieldRequestTransactions, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	b = protowire.AppendTag(b, fieldRequestCommitment, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Commitment))
	return b
}

func (f TransactionFilter) marshal() []byte {
	var b []byte
	if f.Vote != nil {
		b = protowire.AppendTag(b, fieldFilterVote, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*f.Vote))
	}
	if f.Failed != nil {
		b = protowire.AppendTag(b, fieldFilterFailed, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*f.Failed))
	}
	for _, account := range f.AccountInclude {
		b = protowire.AppendTag(b, fieldFilterAccountInclude, protowire.BytesType)
		b = protowire.AppendString(b, account)
	}
	for _, account := range f.AccountExclude {
		b = protowire.AppendTag(b, fieldFilterAccountExclude, protowire.BytesType)
		b = protowire.AppendString(b, account)
	}
	return b
}

// pingRequest encodes a SubscribeRequest that only carries a ping.
func pingRequest(id int32) []byte {
	var ping []byte
	ping = protowire.AppendTag(ping, fieldPingID, protowire.VarintType)
	ping = protowire.AppendVarint(ping, uint64(id))

	var b []byte
	b = protowire.AppendTag(b, fieldRequestPing, protowire.BytesType)
	return protowire.AppendBytes(b, ping)
}
