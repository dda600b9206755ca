package wsclient

import "errors"

var (
	ErrAlreadyConnecting = errors.New("wsclient: connection attempt already outstanding")
	ErrNotConnected      = errors.New("wsclient: not connected")
	ErrClosed            = errors.New("wsclient: controller closed")
	ErrClosedByUser      = errors.New("wsclient: closed by user")
	ErrEmptyMessage      = errors.New("wsclient: empty message")
)
