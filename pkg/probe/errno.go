package probe

import (
	"errors"
	"net"
	"syscall"
)

func isConnRefused(opErr *net.OpError) bool {
	var errno syscall.Errno
	return errors.As(opErr.Err, &errno) && errno == syscall.ECONNREFUSED
}

func isConnReset(opErr *net.OpError) bool {
	var errno syscall.Errno
	return errors.As(opErr.Err, &errno) && errno == syscall.ECONNRESET
}

func isNoRoute(opErr *net.OpError) bool {
	var errno syscall.Errno
	return errors.As(opErr.Err, &errno) && (errno == syscall.EHOSTUNREACH || errno == syscall.ENETUNREACH)
}
