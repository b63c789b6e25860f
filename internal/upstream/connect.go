package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Connect resolves host and service and dials each candidate address in
// order. The first successful connection wins; if none succeeds the joined
// dial errors are returned.
func Connect(ctx context.Context, host, service string, timeout time.Duration) (net.Conn, error) {
	if host == "" {
		return nil, errors.New("upstream host is required")
	}
	if service == "" {
		return nil, errors.New("upstream service is required")
	}

	r := net.DefaultResolver
	port, err := r.LookupPort(ctx, "tcp", service)
	if err != nil {
		return nil, fmt.Errorf("resolve service %q: %w", service, err)
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}

	// Keepalive is configured by controlSocket rather than by the dialer.
	d := &net.Dialer{Timeout: timeout, KeepAlive: -1, Control: controlSocket}

	var errs []error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(a, strconv.Itoa(port)))
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("connect %s:%s: %w", host, service, errors.Join(errs...))
}
