package fudi

import (
	"fmt"
	"strings"
)

// Transport selects stream (TCP) or datagram (UDP) framing.
type Transport string

const (
	TransportStream   Transport = "stream"
	TransportDatagram Transport = "datagram"
)

// ParseTransport accepts "stream"/"tcp" and "datagram"/"udp".
func ParseTransport(raw string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stream", "tcp":
		return TransportStream, nil
	case "datagram", "udp":
		return TransportDatagram, nil
	default:
		return "", fmt.Errorf("fudi: unknown transport %q", raw)
	}
}

// Network returns the net package network name.
func (t Transport) Network() string {
	if t == TransportDatagram {
		return "udp"
	}
	return "tcp"
}

func (t Transport) IsDatagram() bool {
	return t == TransportDatagram
}
