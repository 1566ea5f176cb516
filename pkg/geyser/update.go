package geyser

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// UpdateKind tells which variant of geyser.SubscribeUpdate was received.
type UpdateKind int

const (
	KindOther UpdateKind = iota
	KindTransaction
	KindPing
	KindPong
)

// Update is a decoded geyser.SubscribeUpdate. Only transaction updates carry
// a Signature and Slot.
type Update struct {
	Kind    UpdateKind
	Filters []string

	Signature []byte
	Slot      uint64
	IsVote    bool

	// Timestamp is the local time the message was read off the stream.
	Timestamp time.Time
	// Err is set on the final update when the stream failed.
	Err error
}

// Field numbers from geyser.proto.
const (
	fieldUpdateFilters     protowire.Number = 1
	fieldUpdateTransaction protowire.Number = 4
	fieldUpdatePing        protowire.Number = 6
	fieldUpdatePong        protowire.Number = 9

	fieldTxInfo protowire.Number = 1
	fieldTxSlot protowire.Number = 2

	fieldInfoSignature protowire.Number = 1
	fieldInfoIsVote    protowire.Number = 2
)

// DecodeUpdate decodes a geyser.SubscribeUpdate from protobuf wire format.
// Variants other than transaction, ping and pong are reported as KindOther.
func DecodeUpdate(b []byte) (Update, error) {
	var u Update
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldUpdateFilters && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				u.Filters = append(u.Filters, v)
			}
			return n, nil
		case num == fieldUpdateTransaction && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			u.Kind = KindTransaction
			return n, decodeTransaction(v, &u)
		case num == fieldUpdatePing && typ == protowire.BytesType:
			u.Kind = KindPing
		case num == fieldUpdatePong && typ == protowire.BytesType:
			u.Kind = KindPong
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return u, err
}

func decodeTransaction(b []byte, u *Update) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldTxInfo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, decodeTransactionInfo(v, u)
		case num == fieldTxSlot && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			u.Slot = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func decodeTransactionInfo(b []byte, u *Update) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldInfoSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			u.Signature = v
			return n, nil
		case num == fieldInfoIsVote && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			u.IsVote = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// walk calls field for every field in the message b. field returns the number
// of bytes it consumed from the field's value, or a negative protowire error code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
