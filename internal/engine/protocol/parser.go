package protocol

import (
	"errors"
	"time"

	"FlowGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNoNetworkLayer is returned for frames that carry neither IPv4 nor IPv6.
var ErrNoNetworkLayer = errors.New("no IPv4 or IPv6 layer")

// Parse extracts the L3/L4 fields the pipeline needs from a decoded packet.
// Packets without a TCP or UDP header are still returned, with HasTransport
// unset and zero ports.
func Parse(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{Timestamp: time.Now()}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		info.Length = meta.Length
	}
	if info.Length == 0 {
		info.Length = len(packet.Data())
	}

	var tuple model.FiveTuple
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		tuple.SrcIP = ip.SrcIP
		tuple.DstIP = ip.DstIP
		tuple.Protocol = uint8(ip.Protocol)
		info.TTL = ip.TTL
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		tuple.SrcIP = ip.SrcIP
		tuple.DstIP = ip.DstIP
		tuple.Protocol = uint8(ip.NextHeader)
		info.TTL = ip.HopLimit
	} else {
		return nil, ErrNoNetworkLayer
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		tuple.SrcPort = uint16(tcp.SrcPort)
		tuple.DstPort = uint16(tcp.DstPort)
		tuple.Protocol = model.ProtoTCP
		info.HasTransport = true
		info.PayloadLen = len(tcp.Payload)
		info.Flags = model.TCPFlags{
			FIN: tcp.FIN,
			SYN: tcp.SYN,
			RST: tcp.RST,
			PSH: tcp.PSH,
			ACK: tcp.ACK,
			URG: tcp.URG,
		}
		info.Seq = tcp.Seq
		info.Ack = tcp.Ack
		info.Window = tcp.Window
		info.TCPHeaderLen = int(tcp.DataOffset) * 4
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		tuple.SrcPort = uint16(udp.SrcPort)
		tuple.DstPort = uint16(udp.DstPort)
		tuple.Protocol = model.ProtoUDP
		info.HasTransport = true
		info.PayloadLen = len(udp.Payload)
	}

	info.FiveTuple = tuple
	info.HeaderLen = info.Length - info.PayloadLen
	if info.HeaderLen < 0 {
		info.HeaderLen = 0
	}
	return info, nil
}

// ParseBytes decodes an Ethernet frame and parses it.
func ParseBytes(data []byte) (*model.PacketInfo, error) {
	return Parse(gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default))
}
