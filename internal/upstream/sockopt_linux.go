//go:build linux

package upstream

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// A silent peer is detected after keepIdle + keepCount*keepInterval seconds,
// or once unacknowledged data has waited userTimeoutMillis.
const (
	keepIdle          = 30
	keepInterval      = 10
	keepCount         = 3
	userTimeoutMillis = 60000
)

func controlSocket(network, address string, rc syscall.RawConn) error {
	var serr error
	err := rc.Control(func(fd uintptr) {
		s := int(fd)
		opts := []struct {
			level, name, value int
		}{
			{unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1},
			{unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, keepIdle},
			{unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, keepInterval},
			{unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepCount},
			{unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, userTimeoutMillis},
		}
		for _, o := range opts {
			if serr = unix.SetsockoptInt(s, o.level, o.name, o.value); serr != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return serr
}
