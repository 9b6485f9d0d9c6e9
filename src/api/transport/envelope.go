package transport

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldID      protowire.Number = 1
	fieldAddress protowire.Number = 2
	fieldPayload protowire.Number = 3
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope carries one serialized message to an address on a remote node.
type Envelope struct {
	ID      string
	Address string
	Payload []byte
}

// NewEnvelope stamps a fresh id on payload bound for address.
func NewEnvelope(address string, payload []byte) *Envelope {
	return &Envelope{
		ID:      uuid.NewString(),
		Address: address,
		Payload: payload,
	}
}

// MarshalBinary writes the envelope in protobuf wire format.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, len(e.ID)+len(e.Address)+len(e.Payload)+12)
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, e.ID)
	b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
	b = protowire.AppendString(b, e.Address)
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Payload)
	return b, nil
}

// UnmarshalBinary reads protobuf wire format. Unknown fields are skipped.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	*e = Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || num < fieldID || num > fieldPayload {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedEnvelope, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedEnvelope, num, protowire.ParseError(n))
		}
		switch num {
		case fieldID:
			e.ID = string(v)
		case fieldAddress:
			e.Address = string(v)
		case fieldPayload:
			e.Payload = append([]byte(nil), v...)
		}
		b = b[n:]
	}
	if e.Address == "" {
		return fmt.Errorf("%w: missing address", ErrMalformedEnvelope)
	}
	return nil
}
