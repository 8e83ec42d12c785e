package logwatch

import (
	"github.com/tinylib/msgp/msgp"
)

// Record is the MessagePack wire format of a shipped log line.
type Record struct {
	// Node is the node that produced the line.
	Node string `msg:"node"`

	// Offset is the line's offset in the originating source.
	Offset int64 `msg:"offset"`

	// Text is the line content.
	Text string `msg:"text"`

	// Time is the shipping time in Unix nanoseconds.
	Time int64 `msg:"time"`
}

// MarshalMsg appends the MessagePack encoding of r to b.
func (r *Record) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, r.Msgsize())
	o = msgp.AppendMapHeader(o, 4)
	o = msgp.AppendString(o, "node")
	o = msgp.AppendString(o, r.Node)
	o = msgp.AppendString(o, "offset")
	o = msgp.AppendInt64(o, r.Offset)
	o = msgp.AppendString(o, "text")
	o = msgp.AppendString(o, r.Text)
	o = msgp.AppendString(o, "time")
	o = msgp.AppendInt64(o, r.Time)

	return o, nil
}

// UnmarshalMsg decodes r from bts and returns the remaining bytes.
// Unknown fields are skipped.
func (r *Record) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}

	for ; sz > 0; sz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}

		switch msgp.UnsafeString(field) {
		case "node":
			r.Node, bts, err = msgp.ReadStringBytes(bts)
		case "offset":
			r.Offset, bts, err = msgp.ReadInt64Bytes(bts)
		case "text":
			r.Text, bts, err = msgp.ReadStringBytes(bts)
		case "time":
			r.Time, bts, err = msgp.ReadInt64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, string(field))
		}
	}

	return bts, nil
}

// Msgsize returns an upper bound on the encoded size of r.
func (r *Record) Msgsize() int {
	return 1 +
		5 + msgp.StringPrefixSize + len(r.Node) +
		7 + msgp.Int64Size +
		5 + msgp.StringPrefixSize + len(r.Text) +
		5 + msgp.Int64Size
}
