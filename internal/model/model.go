package model

import (
	"net"
	"time"
)

// Transport protocol numbers used across the pipeline.
const (
	ProtoOther uint8 = 0
	ProtoTCP   uint8 = 6
	ProtoUDP   uint8 = 17
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// TCPFlags holds the control bits of a TCP header.
type TCPFlags struct {
	FIN, SYN, RST, PSH, ACK, URG bool
}

// String renders the flags in the short form used by tcpdump ("SA", "PA", ...).
func (f TCPFlags) String() string {
	var b []byte
	if f.FIN {
		b = append(b, 'F')
	}
	if f.SYN {
		b = append(b, 'S')
	}
	if f.RST {
		b = append(b, 'R')
	}
	if f.PSH {
		b = append(b, 'P')
	}
	if f.ACK {
		b = append(b, 'A')
	}
	if f.URG {
		b = append(b, 'U')
	}
	return string(b)
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int

	// HasTransport is false when no TCP or UDP header could be decoded.
	// Ports, payload and flags are zero in that case.
	HasTransport bool
	PayloadLen   int
	HeaderLen    int
	TTL          uint8

	Flags        TCPFlags
	Seq          uint32
	Ack          uint32
	Window       uint16
	TCPHeaderLen int
}

// ProtoLabel returns the human readable transport label of a protocol number.
func ProtoLabel(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	default:
		return "OTHER"
	}
}
