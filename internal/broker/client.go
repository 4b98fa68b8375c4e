package broker

import (
	"net"

	"github.com/google/uuid"
)

// client is an attached connection. Its geometry lives in the broker's
// geometry.Reconciler, keyed by the client itself (clients compare by
// pointer identity, which is all geometry.Reconciler needs of its key
// type).
type client struct {
	id   uuid.UUID
	conn net.Conn
}

func newClient(conn net.Conn) *client {
	return &client{id: uuid.New(), conn: conn}
}
