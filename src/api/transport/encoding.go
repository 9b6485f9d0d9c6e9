package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single envelope on the wire.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds MaxFrameSize")

type Coder interface {
	Encode(*Envelope) ([]byte, error)
	Decode(io.Reader) (*Envelope, error)
}

// DefaultCoder frames envelopes as a 4 byte big endian length followed by
// the protobuf encoded envelope.
type DefaultCoder struct{}

func (c DefaultCoder) Encode(env *Envelope) ([]byte, error) {
	body, err := env.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

func (c DefaultCoder) Decode(r io.Reader) (*Envelope, error) {
	// header first, then exactly that many bytes of envelope
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(hdr)
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	body := make([]byte, int(size))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	env := &Envelope{}
	if err := env.UnmarshalBinary(body); err != nil {
		return nil, err
	}
	return env, nil
}
