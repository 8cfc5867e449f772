package features

import (
	"FlowGuard/internal/engine/flowtable"
	"FlowGuard/internal/model"
)

// Vector widths per mode.
const (
	FlowWidth   = 13
	PacketWidth = 15
)

var flowNames = []string{
	"Protocol", "Dst Port", "Flow Duration", "Tot Fwd Pkts", "Tot Bwd Pkts",
	"TotLen Fwd Pkts", "TotLen Bwd Pkts", "Fwd Pkt Len Mean", "Bwd Pkt Len Mean",
	"Flow IAT Mean", "Fwd PSH Flags", "Fwd URG Flags", "Fwd IAT Mean",
}

var packetNames = []string{
	"protocol", "src_port", "dst_port", "flow_duration", "fwd_packets", "total_packets",
	"bwd_packets", "payload_len", "header_len", "bytes_per_sec", "packets_per_sec",
	"syn_flag", "ack_flag", "rst_flag", "fin_flag",
}

// placeholder duration, in seconds, of the synthetic one-packet flow used
// for per-packet rate features
const packetWindow = 0.002

// FlowFeatures builds the 13-value vector of an evicted flow.
func FlowFeatures(s flowtable.Snapshot) []float64 {
	iatMean := s.IATMean()
	fwdIAT := 0.0
	if s.PacketsFwd > 0 {
		// per-direction timestamps are not kept; the flow-wide mean stands in
		fwdIAT = iatMean
	}
	return []float64{
		float64(s.Protocol),
		float64(s.ServerPort),
		s.Duration(),
		float64(s.PacketsFwd),
		float64(s.PacketsBwd),
		float64(s.BytesFwd),
		float64(s.BytesBwd),
		s.FwdMeanLen(),
		s.BwdMeanLen(),
		iatMean,
		float64(s.FwdPSH),
		float64(s.FwdURG),
		fwdIAT,
	}
}

// PacketFeatures builds the 15-value vector of a single packet. Flow context
// the packet cannot know is replaced by fixed placeholders.
func PacketFeatures(p *model.PacketInfo) []float64 {
	proto := 1.0
	var sport, dport float64
	if p.HasTransport {
		proto = float64(p.FiveTuple.Protocol)
		sport = float64(p.FiveTuple.SrcPort)
		dport = float64(p.FiveTuple.DstPort)
	}
	plen := float64(p.PayloadLen)
	return []float64{
		proto,
		sport,
		dport,
		0.001,
		1,
		1,
		0,
		plen,
		float64(p.HeaderLen),
		plen / packetWindow,
		1 / packetWindow,
		flag(p.Flags.SYN),
		flag(p.Flags.ACK),
		flag(p.Flags.RST),
		flag(p.Flags.FIN),
	}
}

// Names returns the column names of the vectors built for mode.
func Names(mode model.Mode) []string {
	if mode == model.ModePacket {
		return append([]string(nil), packetNames...)
	}
	return append([]string(nil), flowNames...)
}

// Width returns the vector length for mode.
func Width(mode model.Mode) int {
	if mode == model.ModePacket {
		return PacketWidth
	}
	return FlowWidth
}

// Index returns the column of a named feature, or -1.
func Index(mode model.Mode, name string) int {
	names := flowNames
	if mode == model.ModePacket {
		names = packetNames
	}
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
