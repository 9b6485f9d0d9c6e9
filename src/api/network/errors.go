package network

import "errors"

var (
	ErrConfig     = errors.New("network configuration error")
	ErrInvalidURI = errors.New("invalid uri")
	ErrNoSender   = errors.New("no message sender installed")
	ErrDestroyed  = errors.New("messenger destroyed")
	ErrClosed     = errors.New("network closed")
)
