package ingest

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// groupMembership is the joined multicast group of a socket, if any.
type groupMembership interface {
	LeaveGroup(ifi *net.Interface, group net.Addr) error
}

// socket is a bound datagram connection plus its multicast membership.
type socket struct {
	conn   *net.UDPConn
	member groupMembership
	ifi    *net.Interface
	group  *net.UDPAddr
}

func network(ip net.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

// listen binds a unicast socket, or binds the group port and joins it for multicast endpoints.
func listen(ep types.Endpoint, ifaceName string) (*socket, error) {
	addr := ep.Addr()
	conn, err := net.ListenUDP(network(ep.IP), addr)
	if err != nil {
		return nil, &ConnectError{Op: "bind", Endpoint: ep, Err: err}
	}

	s := &socket{conn: conn}
	if !ep.Multicast {
		return s, nil
	}

	if ifaceName != "" {
		s.ifi, err = net.InterfaceByName(ifaceName)
		if err != nil {
			_ = conn.Close()
			return nil, &ConnectError{Op: "join", Endpoint: ep, Err: fmt.Errorf("interface %s: %w", ifaceName, err)}
		}
	}

	s.group = &net.UDPAddr{IP: ep.IP}
	if ep.IP.To4() != nil {
		pc := ipv4.NewPacketConn(conn)
		err = pc.JoinGroup(s.ifi, s.group)
		s.member = pc
	} else {
		pc := ipv6.NewPacketConn(conn)
		err = pc.JoinGroup(s.ifi, s.group)
		s.member = pc
	}
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Op: "join", Endpoint: ep, Err: err}
	}

	return s, nil
}

// close leaves the multicast group, if one was joined, and releases the socket.
func (s *socket) close() error {
	if s.member != nil {
		// The kernel drops membership with the socket anyway.
		_ = s.member.LeaveGroup(s.ifi, s.group)
		s.member = nil
	}
	return s.conn.Close()
}
