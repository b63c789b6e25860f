package upstream

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// ErrClosed reports an orderly close by the peer.
var ErrClosed = errors.New("upstream closed")

// ReadOnce performs one read into buf. An interrupted read is retried, end of
// stream with no data becomes ErrClosed, and any other failure is wrapped.
func ReadOnce(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, syscall.EINTR):
			if n > 0 {
				return n, nil
			}
		case errors.Is(err, io.EOF):
			if n > 0 {
				return n, nil
			}
			return 0, ErrClosed
		default:
			return n, fmt.Errorf("upstream read: %w", err)
		}
	}
}
