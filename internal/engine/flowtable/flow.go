package flowtable

import (
	"net/netip"
	"sync"
	"time"

	"FlowGuard/internal/model"
)

// Flow accumulates the statistics of one conversation. The client is the
// source of the first packet seen; that orientation never changes.
type Flow struct {
	mu     sync.Mutex
	key    Key
	closed bool

	clientIP   netip.Addr
	clientPort uint16
	serverIP   netip.Addr
	serverPort uint16
	protocol   uint8

	firstSeen    time.Time
	lastSeen     time.Time
	lastPacketTS time.Time

	packetsTotal uint64
	packetsFwd   uint64
	packetsBwd   uint64
	bytesFwd     uint64
	bytesBwd     uint64

	fwdLenSum float64
	bwdLenSum float64
	iatSum    float64
	iatCount  uint64

	fwdPSH uint64
	fwdURG uint64
}

func newFlow(key Key, pkt *model.PacketInfo, ts time.Time) *Flow {
	f := &Flow{
		key:          key,
		protocol:     normaliseProto(pkt.FiveTuple.Protocol),
		firstSeen:    ts,
		lastSeen:     ts,
		lastPacketTS: ts,
	}
	f.clientIP, _ = addrOf(pkt.FiveTuple.SrcIP)
	f.serverIP, _ = addrOf(pkt.FiveTuple.DstIP)
	if pkt.HasTransport {
		f.clientPort = pkt.FiveTuple.SrcPort
		f.serverPort = pkt.FiveTuple.DstPort
	}
	return f
}

// Update folds a packet into the flow. It returns false once the flow has been
// evicted; the caller must then look the key up again.
func (f *Flow) Update(pkt *model.PacketInfo, ts time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	f.packetsTotal++

	forward := false
	payload := 0
	if pkt.HasTransport {
		payload = pkt.PayloadLen
		src, _ := addrOf(pkt.FiveTuple.SrcIP)
		forward = src == f.clientIP && pkt.FiveTuple.SrcPort == f.clientPort
	}

	if forward {
		f.packetsFwd++
		f.bytesFwd += uint64(payload)
		f.fwdLenSum += float64(payload)
		if pkt.Flags.PSH {
			f.fwdPSH++
		}
		if pkt.Flags.URG {
			f.fwdURG++
		}
	} else {
		f.packetsBwd++
		f.bytesBwd += uint64(payload)
		f.bwdLenSum += float64(payload)
	}

	if iat := ts.Sub(f.lastPacketTS).Seconds(); iat > 0 {
		f.iatSum += iat
		f.iatCount++
	}
	f.lastPacketTS = ts
	if ts.After(f.lastSeen) {
		f.lastSeen = ts
	}
	return true
}

// Key returns the canonical key the flow is stored under.
func (f *Flow) Key() Key { return f.key }

// LastSeen returns the timestamp of the newest packet.
func (f *Flow) LastSeen() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

// Packets returns the total number of packets folded in.
func (f *Flow) Packets() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packetsTotal
}

func (f *Flow) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Snapshot is an immutable copy of a flow's accumulators.
type Snapshot struct {
	ClientIP   netip.Addr
	ClientPort uint16
	ServerIP   netip.Addr
	ServerPort uint16
	Protocol   uint8

	FirstSeen time.Time
	LastSeen  time.Time

	PacketsTotal uint64
	PacketsFwd   uint64
	PacketsBwd   uint64
	BytesFwd     uint64
	BytesBwd     uint64

	FwdLenSum float64
	BwdLenSum float64
	IATSum    float64
	IATCount  uint64

	FwdPSH uint64
	FwdURG uint64
}

// Snapshot copies the flow state under its lock.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		ClientIP:     f.clientIP,
		ClientPort:   f.clientPort,
		ServerIP:     f.serverIP,
		ServerPort:   f.serverPort,
		Protocol:     f.protocol,
		FirstSeen:    f.firstSeen,
		LastSeen:     f.lastSeen,
		PacketsTotal: f.packetsTotal,
		PacketsFwd:   f.packetsFwd,
		PacketsBwd:   f.packetsBwd,
		BytesFwd:     f.bytesFwd,
		BytesBwd:     f.bytesBwd,
		FwdLenSum:    f.fwdLenSum,
		BwdLenSum:    f.bwdLenSum,
		IATSum:       f.iatSum,
		IATCount:     f.iatCount,
		FwdPSH:       f.fwdPSH,
		FwdURG:       f.fwdURG,
	}
}

// Duration is the flow lifetime in seconds, never below one microsecond.
func (s Snapshot) Duration() float64 {
	d := s.LastSeen.Sub(s.FirstSeen).Seconds()
	if d < 1e-6 {
		return 1e-6
	}
	return d
}

// FwdMeanLen is the mean forward payload length.
func (s Snapshot) FwdMeanLen() float64 {
	if s.PacketsFwd == 0 {
		return 0
	}
	return s.FwdLenSum / float64(s.PacketsFwd)
}

// BwdMeanLen is the mean backward payload length.
func (s Snapshot) BwdMeanLen() float64 {
	if s.PacketsBwd == 0 {
		return 0
	}
	return s.BwdLenSum / float64(s.PacketsBwd)
}

// IATMean is the mean positive inter-arrival time in seconds.
func (s Snapshot) IATMean() float64 {
	if s.IATCount == 0 {
		return 0
	}
	return s.IATSum / float64(s.IATCount)
}

// Summary builds the compact view attached to flow events.
func (s Snapshot) Summary() *model.FlowSummary {
	return &model.FlowSummary{
		PacketsFwd: s.PacketsFwd,
		PacketsBwd: s.PacketsBwd,
		BytesFwd:   s.BytesFwd,
		BytesBwd:   s.BytesBwd,
		Duration:   s.LastSeen.Sub(s.FirstSeen).Seconds(),
		FwdMeanLen: s.FwdMeanLen(),
	}
}
