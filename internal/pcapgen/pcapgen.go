package pcapgen

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sort"
	"time"

	"FlowGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Spec describes one synthetic packet.
type Spec struct {
	Time     time.Time
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	Flags    model.TCPFlags
	Payload  int
	TTL      uint8
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Frame serializes a spec into an Ethernet frame with valid checksums.
func Frame(s Spec) ([]byte, error) {
	ttl := s.TTL
	if ttl == 0 {
		ttl = 64
	}
	proto := layers.IPProtocol(s.Protocol)

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}
	var netLayer gopacket.NetworkLayer
	var ls []gopacket.SerializableLayer
	if s.SrcIP.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{Version: 4, TTL: ttl, Protocol: proto, SrcIP: s.SrcIP.To4(), DstIP: s.DstIP.To4()}
		netLayer = ip
		ls = append(ls, eth, ip)
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{Version: 6, HopLimit: ttl, NextHeader: proto, SrcIP: s.SrcIP, DstIP: s.DstIP}
		netLayer = ip
		ls = append(ls, eth, ip)
	}

	switch s.Protocol {
	case model.ProtoTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(s.SrcPort),
			DstPort: layers.TCPPort(s.DstPort),
			Seq:     rand.Uint32(),
			Window:  14600,
			FIN:     s.Flags.FIN,
			SYN:     s.Flags.SYN,
			RST:     s.Flags.RST,
			PSH:     s.Flags.PSH,
			ACK:     s.Flags.ACK,
			URG:     s.Flags.URG,
		}
		if s.Flags.ACK {
			tcp.Ack = rand.Uint32()
		}
		if err := tcp.SetNetworkLayerForChecksum(netLayer); err != nil {
			return nil, fmt.Errorf("failed to set checksum layer: %w", err)
		}
		ls = append(ls, tcp)
	case model.ProtoUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(s.SrcPort), DstPort: layers.UDPPort(s.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(netLayer); err != nil {
			return nil, fmt.Errorf("failed to set checksum layer: %w", err)
		}
		ls = append(ls, udp)
	}

	payload := make([]byte, s.Payload)
	rand.Read(payload)
	ls = append(ls, gopacket.Payload(payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// Packet builds a decoded packet with capture metadata, as a live source would deliver it.
func Packet(s Spec) (gopacket.Packet, error) {
	data, err := Frame(s)
	if err != nil {
		return nil, err
	}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := pkt.Metadata()
	md.Timestamp = s.Time
	md.CaptureLength = len(data)
	md.Length = len(data)
	return pkt, nil
}

// Write emits a pcap stream with one record per spec.
func Write(w io.Writer, specs []Spec) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i, s := range specs {
		data, err := Frame(s)
		if err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
		ci := gopacket.CaptureInfo{Timestamp: s.Time, CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile writes specs into a new pcap file at path.
func WriteFile(path string, specs []Spec) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(f, specs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Conversation generates a TCP exchange between a client and a server.
// Packets alternate client→server and server→client, starting with the
// client, spaced by gap.
func Conversation(client, server net.IP, sport, dport uint16, n int, start time.Time, gap time.Duration) []Spec {
	specs := make([]Spec, 0, n)
	for i := 0; i < n; i++ {
		s := Spec{
			Time:     start.Add(time.Duration(i) * gap),
			Protocol: model.ProtoTCP,
			Payload:  100,
			Flags:    model.TCPFlags{ACK: true},
		}
		if i%2 == 0 {
			s.SrcIP, s.DstIP, s.SrcPort, s.DstPort = client, server, sport, dport
			s.Flags.PSH = true
		} else {
			s.SrcIP, s.DstIP, s.SrcPort, s.DstPort = server, client, dport, sport
			s.Payload = 200
		}
		if i == 0 {
			s.Flags = model.TCPFlags{SYN: true}
			s.Payload = 0
		}
		specs = append(specs, s)
	}
	return specs
}

// Random generates n unrelated packets with random endpoints, mixing TCP and UDP.
func Random(rng *rand.Rand, n int, start time.Time, gap time.Duration) []Spec {
	specs := make([]Spec, 0, n)
	for i := 0; i < n; i++ {
		s := Spec{
			Time:     start.Add(time.Duration(i) * gap),
			SrcIP:    net.IP{10, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
			DstIP:    net.IP{192, 168, byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
			SrcPort:  uint16(rng.Intn(65535-1024) + 1024),
			DstPort:  uint16(rng.Intn(1024) + 1),
			Protocol: model.ProtoTCP,
			Payload:  rng.Intn(1400) + 50,
			Flags:    model.TCPFlags{SYN: true},
		}
		if rng.Intn(4) == 0 {
			s.Protocol = model.ProtoUDP
			s.Flags = model.TCPFlags{}
		}
		specs = append(specs, s)
	}
	return specs
}

// SortByTime orders specs by capture time, keeping the order of equal times.
func SortByTime(specs []Spec) {
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Time.Before(specs[j].Time) })
}
