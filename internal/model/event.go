package model

import "time"

// FlowSummary is the compact view of an evicted flow attached to flow-mode events.
type FlowSummary struct {
	PacketsFwd uint64  `json:"packets_fwd"`
	PacketsBwd uint64  `json:"packets_bwd"`
	BytesFwd   uint64  `json:"bytes_fwd"`
	BytesBwd   uint64  `json:"bytes_bwd"`
	Duration   float64 `json:"duration"`
	FwdMeanLen float64 `json:"fwd_mean_len"`
}

// PacketMeta carries per-packet header details for packet-mode events.
type PacketMeta struct {
	TTL        uint8  `json:"ttl"`
	PktLen     int    `json:"pkt_len"`
	Seq        uint32 `json:"seq,omitempty"`
	Ack        uint32 `json:"ack,omitempty"`
	Window     uint16 `json:"window,omitempty"`
	Flags      string `json:"flags,omitempty"`
	HeaderLen  int    `json:"header_len,omitempty"`
	PayloadLen int    `json:"payload_len"`
}

// Event is a classified record emitted by the pipeline. It is built once after
// classification and never mutated afterwards.
type Event struct {
	ID         string       `json:"id"`
	Time       time.Time    `json:"time"`
	Model      string       `json:"model"`
	SrcIP      string       `json:"src_ip"`
	DstIP      string       `json:"dst_ip"`
	SrcPort    uint16       `json:"sport"`
	DstPort    uint16       `json:"dport"`
	Proto      string       `json:"proto"`
	Prediction *string      `json:"prediction"`
	Confidence *float64     `json:"confidence"`
	Features   []float64    `json:"features,omitempty"`
	Flow       *FlowSummary `json:"flow_summary,omitempty"`
	Packet     *PacketMeta  `json:"packet_meta,omitempty"`
}

// Label returns the prediction or "Unknown" when the event is unclassified.
func (e Event) Label() string {
	if e.Prediction == nil {
		return "Unknown"
	}
	return *e.Prediction
}

// Batch is the unit pushed to broadcast subscribers.
type Batch struct {
	Count int     `json:"count"`
	Items []Event `json:"items"`
}
