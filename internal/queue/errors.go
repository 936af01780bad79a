package queue

import "errors"

// ErrClosed is returned by Receive once a closed queue is empty.
var ErrClosed = errors.New("queue closed")
