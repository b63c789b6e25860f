//go:build !linux

package upstream

import "syscall"

func controlSocket(network, address string, rc syscall.RawConn) error {
	return nil
}
