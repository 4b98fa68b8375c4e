// Package address identifies whether a session identifier names a local
// filesystem socket or a TCP endpoint, and binds a listening socket for it.
package address

import (
	"fmt"
	"net"
	"os"
)

// Family is the address family a session identifier resolves to.
type Family int

const (
	// Local is a filesystem-path Unix domain socket.
	Local Family = iota
	// TCP is a host:port endpoint.
	TCP
)

func (f Family) String() string {
	if f == Local {
		return "local"
	}
	return "tcp"
}

// Identify inspects id's shape and reports which family it names. An
// identifier parses as TCP when it has the form host:port with a numeric
// port; anything else (including a bare path, which is the common case)
// is treated as a local socket path.
func Identify(id string) Family {
	host, port, err := net.SplitHostPort(id)
	if err != nil {
		return Local
	}
	if port == "" {
		return Local
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return Local
		}
	}
	_ = host
	return TCP
}

// Endpoint is a bound, listening socket plus bookkeeping the caller needs
// for shutdown: the resolved family and, for Local sockets, the
// filesystem path that must be unlinked afterward.
type Endpoint struct {
	net.Listener
	Family     Family
	LocalPath  string // set only when Family == Local
}

// Bind creates a stream socket in the identified family, binds it to id,
// and begins listening. The backlog argument is not applied: net.Listen
// always uses the system's default listen backlog. On failure it reports
// a fatal error naming the offending syscall; the caller (the shutdown
// coordinator) is responsible for unlinking any path bind left behind on
// a later failure, since Bind does not remove a pre-existing path itself.
func Bind(id string, backlog int) (*Endpoint, error) {
	family := Identify(id)
	switch family {
	case TCP:
		ln, err := net.Listen("tcp", id)
		if err != nil {
			return nil, fmt.Errorf("bind(tcp, %s): %w", id, err)
		}
		return &Endpoint{Listener: ln, Family: TCP}, nil
	default:
		ln, err := net.Listen("unix", id)
		if err != nil {
			return nil, fmt.Errorf("bind(unix, %s): %w", id, err)
		}
		if l, ok := ln.(*net.UnixListener); ok {
			// The socket file is removed by our own shutdown path, not
			// the net package's finalizer, so the peer sees a clean
			// unlink only once, at the moment we intend it.
			l.SetUnlinkOnClose(false)
		}
		return &Endpoint{Listener: ln, Family: Local, LocalPath: id}, nil
	}
}

// Unlink removes the local socket file, if this endpoint is Local. A
// no-op for TCP endpoints.
func (e *Endpoint) Unlink() error {
	if e == nil || e.Family != Local || e.LocalPath == "" {
		return nil
	}
	return unlinkIfExists(e.LocalPath)
}

func unlinkIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink(%s): %w", path, err)
	}
	return nil
}
