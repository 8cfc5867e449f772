package protocol

import (
	"net"
	"testing"
	"time"

	"FlowGuard/internal/model"
	"FlowGuard/internal/pcapgen"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTCP(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	pkt, err := pcapgen.Packet(pcapgen.Spec{
		Time:     ts,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
		SrcPort:  40000,
		DstPort:  443,
		Protocol: model.ProtoTCP,
		Flags:    model.TCPFlags{PSH: true, ACK: true},
		Payload:  120,
		TTL:      57,
	})
	require.NoError(t, err)

	info, err := Parse(pkt)
	require.NoError(t, err)

	assert.Equal(t, ts, info.Timestamp)
	assert.True(t, info.HasTransport)
	assert.Equal(t, model.ProtoTCP, info.FiveTuple.Protocol)
	assert.Equal(t, "10.0.0.1", info.FiveTuple.SrcIP.String())
	assert.Equal(t, "10.0.0.2", info.FiveTuple.DstIP.String())
	assert.Equal(t, uint16(40000), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(443), info.FiveTuple.DstPort)
	assert.Equal(t, 120, info.PayloadLen)
	assert.Equal(t, 14+20+20+120, info.Length)
	assert.Equal(t, 14+20+20, info.HeaderLen)
	assert.Equal(t, 20, info.TCPHeaderLen)
	assert.Equal(t, uint8(57), info.TTL)
	assert.True(t, info.Flags.PSH)
	assert.True(t, info.Flags.ACK)
	assert.False(t, info.Flags.SYN)
	assert.Equal(t, "PA", info.Flags.String())
}

func TestParseUDPAndIPv6(t *testing.T) {
	pkt, err := pcapgen.Packet(pcapgen.Spec{
		Time:     time.Now(),
		SrcIP:    net.ParseIP("fd00::1"),
		DstIP:    net.ParseIP("fd00::2"),
		SrcPort:  5353,
		DstPort:  53,
		Protocol: model.ProtoUDP,
		Payload:  30,
	})
	require.NoError(t, err)

	info, err := Parse(pkt)
	require.NoError(t, err)
	assert.True(t, info.HasTransport)
	assert.Equal(t, model.ProtoUDP, info.FiveTuple.Protocol)
	assert.Equal(t, "fd00::1", info.FiveTuple.SrcIP.String())
	assert.Equal(t, uint16(53), info.FiveTuple.DstPort)
	assert.Equal(t, 30, info.PayloadLen)
	assert.Equal(t, uint8(64), info.TTL)
}

func TestParseWithoutTransport(t *testing.T) {
	pkt, err := pcapgen.Packet(pcapgen.Spec{
		Time:     time.Now(),
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
		Protocol: 1,
		Payload:  8,
	})
	require.NoError(t, err)

	info, err := Parse(pkt)
	require.NoError(t, err)
	assert.False(t, info.HasTransport)
	assert.Equal(t, uint8(1), info.FiveTuple.Protocol)
	assert.Zero(t, info.FiveTuple.SrcPort)
	assert.Zero(t, info.PayloadLen)
	assert.Equal(t, info.Length, info.HeaderLen)
}

func TestParseRejectsNonIP(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))

	_, err := ParseBytes(buf.Bytes())
	assert.ErrorIs(t, err, ErrNoNetworkLayer)
}
