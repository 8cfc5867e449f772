package features

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"FlowGuard/internal/engine/flowtable"
	"FlowGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowFeatures(t *testing.T) {
	start := time.Unix(1000, 0)
	s := flowtable.Snapshot{
		ClientIP:     netip.MustParseAddr("10.0.0.1"),
		ClientPort:   1234,
		ServerIP:     netip.MustParseAddr("10.0.0.2"),
		ServerPort:   80,
		Protocol:     model.ProtoTCP,
		FirstSeen:    start,
		LastSeen:     start.Add(200 * time.Millisecond),
		PacketsTotal: 6,
		PacketsFwd:   3,
		PacketsBwd:   3,
		BytesFwd:     300,
		BytesBwd:     600,
		FwdLenSum:    300,
		BwdLenSum:    600,
		IATSum:       0.2,
		IATCount:     2,
		FwdPSH:       2,
		FwdURG:       1,
	}

	v := FlowFeatures(s)
	require.Len(t, v, FlowWidth)
	want := []float64{6, 80, 0.2, 3, 3, 300, 600, 100, 200, 0.1, 2, 1, 0.1}
	for i := range want {
		assert.InDelta(t, want[i], v[i], 1e-9, "column %s", Names(model.ModeFlow)[i])
	}
}

func TestFlowFeaturesNoForwardPackets(t *testing.T) {
	start := time.Unix(1000, 0)
	v := FlowFeatures(flowtable.Snapshot{
		Protocol:   model.ProtoUDP,
		ServerPort: 53,
		FirstSeen:  start,
		LastSeen:   start,
		PacketsBwd: 2,
		IATSum:     0.5,
		IATCount:   1,
	})
	assert.InDelta(t, 1e-6, v[2], 1e-12)
	assert.InDelta(t, 0.5, v[9], 1e-9)
	assert.Zero(t, v[12])
	assert.Zero(t, v[7])
}

func TestPacketFeatures(t *testing.T) {
	p := &model.PacketInfo{
		FiveTuple: model.FiveTuple{
			SrcIP: net.ParseIP("10.0.0.1"), DstIP: net.ParseIP("10.0.0.2"),
			SrcPort: 40000, DstPort: 443, Protocol: model.ProtoTCP,
		},
		HasTransport: true,
		PayloadLen:   100,
		HeaderLen:    54,
		Flags:        model.TCPFlags{SYN: true, ACK: true},
	}
	v := PacketFeatures(p)
	require.Len(t, v, PacketWidth)
	want := []float64{6, 40000, 443, 0.001, 1, 1, 0, 100, 54, 50000, 500, 1, 1, 0, 0}
	for i := range want {
		assert.InDelta(t, want[i], v[i], 1e-9, "column %s", Names(model.ModePacket)[i])
	}
}

func TestPacketFeaturesWithoutTransport(t *testing.T) {
	v := PacketFeatures(&model.PacketInfo{
		FiveTuple: model.FiveTuple{Protocol: 1},
		HeaderLen: 60,
	})
	assert.Equal(t, 1.0, v[0])
	assert.Zero(t, v[1])
	assert.Zero(t, v[2])
	assert.Equal(t, 60.0, v[8])
}

func TestNamesAndIndex(t *testing.T) {
	assert.Len(t, Names(model.ModeFlow), FlowWidth)
	assert.Len(t, Names(model.ModePacket), PacketWidth)
	assert.Equal(t, 1, Index(model.ModeFlow, "Dst Port"))
	assert.Equal(t, 11, Index(model.ModePacket, "syn_flag"))
	assert.Equal(t, -1, Index(model.ModeFlow, "nope"))

	n := Names(model.ModeFlow)
	n[0] = "mutated"
	assert.Equal(t, "Protocol", Names(model.ModeFlow)[0])
}
