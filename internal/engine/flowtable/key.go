package flowtable

import (
	"fmt"
	"net"
	"net/netip"

	"FlowGuard/internal/model"
)

// Key identifies a bidirectional conversation. Both directions of one
// conversation produce the same Key: the lower endpoint is always stored first.
type Key struct {
	LoIP     netip.Addr
	HiIP     netip.Addr
	LoPort   uint16
	HiPort   uint16
	Protocol uint8
}

// KeyOf builds the canonical key of a packet. The protocol is normalised to
// 6, 17 or 0 so that non TCP/UDP traffic between two hosts shares one flow.
func KeyOf(ft model.FiveTuple) (Key, bool) {
	src, ok1 := addrOf(ft.SrcIP)
	dst, ok2 := addrOf(ft.DstIP)
	if !ok1 || !ok2 {
		return Key{}, false
	}
	proto := normaliseProto(ft.Protocol)
	sport, dport := ft.SrcPort, ft.DstPort
	if proto == model.ProtoOther {
		sport, dport = 0, 0
	}

	if c := src.Compare(dst); c < 0 || (c == 0 && sport <= dport) {
		return Key{LoIP: src, HiIP: dst, LoPort: sport, HiPort: dport, Protocol: proto}, true
	}
	return Key{LoIP: dst, HiIP: src, LoPort: dport, HiPort: sport, Protocol: proto}, true
}

// String renders the key the way log lines refer to it.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d<->%s:%d/%s",
		k.LoIP, k.LoPort, k.HiIP, k.HiPort, model.ProtoLabel(k.Protocol))
}

func addrOf(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func normaliseProto(p uint8) uint8 {
	switch p {
	case model.ProtoTCP, model.ProtoUDP:
		return p
	default:
		return model.ProtoOther
	}
}
