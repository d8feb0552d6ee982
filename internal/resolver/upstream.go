package resolver

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/miekg/dns"
)

// queryTimeout bounds each phase of an exchange with an upstream: the
// connect gets its own timeout; over UDP the send and receive share one
// deadline, and over TCP the write phase and each of the two reads get
// a fresh deadline, so no single read can consume another's budget.
const queryTimeout = 5 * time.Second

// forwardUDP sends query to upstream over UDP and returns the parsed
// response. A fresh ephemeral socket is used per query, matching the
// stateless request/response nature of the protocol.
func forwardUDP(query *dns.Msg, upstream string) (*dns.Msg, error) {
	conn, err := net.DialTimeout("udp", upstream, queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", upstream, err)
	}
	defer conn.Close()

	packed, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	conn.SetDeadline(time.Now().Add(queryTimeout))
	if _, err := conn.Write(packed); err != nil {
		return nil, fmt.Errorf("write to %s: %w", upstream, err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", upstream, err)
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(buf[:n]); err != nil {
		return nil, fmt.Errorf("unpack response from %s: %w", upstream, err)
	}
	return resp, nil
}

// forwardTCP sends query to upstream over TCP using the standard
// 2-byte big-endian length prefix framing, each I/O step bounded by its
// own timeout.
func forwardTCP(query *dns.Msg, upstream string) (*dns.Msg, error) {
	conn, err := net.DialTimeout("tcp", upstream, queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", upstream, err)
	}
	defer conn.Close()

	packed, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}
	if len(packed) > 0xffff {
		return nil, fmt.Errorf("query too large for TCP framing: %d bytes", len(packed))
	}

	conn.SetDeadline(time.Now().Add(queryTimeout))

	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(packed)))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("write length prefix to %s: %w", upstream, err)
	}
	if _, err := conn.Write(packed); err != nil {
		return nil, fmt.Errorf("write query to %s: %w", upstream, err)
	}

	conn.SetDeadline(time.Now().Add(queryTimeout))
	if _, err := io.ReadFull(conn, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("read length prefix from %s: %w", upstream, err)
	}
	respLen := binary.BigEndian.Uint16(lenPrefix[:])

	conn.SetDeadline(time.Now().Add(queryTimeout))
	buf := make([]byte, respLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("read response body from %s: %w", upstream, err)
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(buf); err != nil {
		return nil, fmt.Errorf("unpack TCP response from %s: %w", upstream, err)
	}
	return resp, nil
}

// forward dispatches to the UDP or TCP path, normalizing upstream to
// include a port (the default DNS port, 53) if the caller left it bare.
func forward(query *dns.Msg, upstream string, protocol string) (*dns.Msg, error) {
	if _, _, err := net.SplitHostPort(upstream); err != nil {
		upstream = net.JoinHostPort(upstream, "53")
	}

	if protocol == "tcp" {
		return forwardTCP(query, upstream)
	}
	return forwardUDP(query, upstream)
}
