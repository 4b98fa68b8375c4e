package broker

import "net"

// event is the tagged union of everything the broker's single event loop
// reacts to. Each variant is produced by a small reader goroutine (one
// per client, one for the PTY, one for the listener, one for signals)
// and funneled onto the broker's single events channel — the Go
// translation of poll(2) readiness.
type event interface{ isEvent() }

type evNewConn struct{ conn net.Conn }

type evClientData struct {
	c    *client
	data []byte
}

type evClientClosed struct{ c *client }

type evPTYData struct{ data []byte }

type evPTYClosed struct{}

type evSignal struct{ terminate bool }

func (evNewConn) isEvent()      {}
func (evClientData) isEvent()   {}
func (evClientClosed) isEvent() {}
func (evPTYData) isEvent()      {}
func (evPTYClosed) isEvent()    {}
func (evSignal) isEvent()       {}
