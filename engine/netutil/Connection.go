package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is the network connection type used by packet connections
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn wraps a raw net.Conn as a Connection with no-op flushing
type NetConn struct {
	net.Conn
}

// Flush flushes the connection
func (n NetConn) Flush() error {
	return nil
}
