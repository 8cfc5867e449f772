package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"FlowGuard/internal/config"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// ErrNoInterface is returned when no capture interface is given and none can be found.
var ErrNoInterface = errors.New("no capture interface available")

// Source delivers captured packets. The channel is closed when the source is
// exhausted or closed. Offline sources (files) must not lose packets to
// backpressure.
type Source interface {
	Name() string
	Packets() <-chan gopacket.Packet
	Offline() bool
	Close()
}

// Opener opens a source for an interface name.
type Opener func(iface string) (Source, error)

// Options holds the pcap handle settings.
type Options struct {
	SnapshotLen int32
	Promiscuous bool
	BPFFilter   string
	// ReadTimeout bounds each blocking read so Close is noticed promptly.
	ReadTimeout time.Duration
}

// OptionsFrom derives handle options from the capture configuration.
func OptionsFrom(cfg config.CaptureConfig) Options {
	return Options{
		SnapshotLen: cfg.SnapshotLen,
		Promiscuous: cfg.Promiscuous,
		BPFFilter:   cfg.BPFFilter,
		ReadTimeout: 250 * time.Millisecond,
	}
}

// PcapSource reads packets from a libpcap handle.
type PcapSource struct {
	name    string
	offline bool
	handle  *pcap.Handle
	src     *gopacket.PacketSource
	out     chan gopacket.Packet
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// OpenLive opens a live capture on iface. An empty iface selects the first
// usable device.
func OpenLive(iface string, opts Options) (*PcapSource, error) {
	if iface == "" {
		dev, err := DefaultInterface()
		if err != nil {
			return nil, err
		}
		iface = dev
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	handle, err := pcap.OpenLive(iface, opts.SnapshotLen, opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", iface, err)
	}
	return newSource(iface, false, handle, opts.BPFFilter)
}

// OpenFile opens a pcap file for replay.
func OpenFile(path, bpf string) (*PcapSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("error opening pcap file %s: %w", path, err)
	}
	return newSource(path, true, handle, bpf)
}

func newSource(name string, offline bool, handle *pcap.Handle, bpf string) (*PcapSource, error) {
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid BPF filter %q: %w", bpf, err)
		}
	}
	s := &PcapSource{
		name:    name,
		offline: offline,
		handle:  handle,
		src:     gopacket.NewPacketSource(handle, handle.LinkType()),
		out:     make(chan gopacket.Packet, 256),
		done:    make(chan struct{}),
	}
	s.src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// LiveOpener returns an Opener for live interfaces.
func LiveOpener(opts Options) Opener {
	return func(iface string) (Source, error) {
		return OpenLive(iface, opts)
	}
}

// FileOpener returns an Opener that replays path regardless of the interface name.
func FileOpener(path, bpf string) Opener {
	return func(string) (Source, error) {
		return OpenFile(path, bpf)
	}
}

// Name returns the interface or file name.
func (s *PcapSource) Name() string { return s.name }

// Offline reports whether the source replays a file.
func (s *PcapSource) Offline() bool { return s.offline }

// Packets returns the packet channel.
func (s *PcapSource) Packets() <-chan gopacket.Packet { return s.out }

// Close stops reading and releases the handle. It is safe to call twice.
func (s *PcapSource) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.handle.Close()
	})
}

func (s *PcapSource) run() {
	defer s.wg.Done()
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		pkt, err := s.src.NextPacket()
		switch {
		case err == nil:
			select {
			case s.out <- pkt:
			case <-s.done:
				return
			}
		case errors.Is(err, io.EOF):
			log.WithField("source", s.name).Info("Capture source exhausted")
			return
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, pcap.NextErrorNoMorePackets):
			return
		default:
			log.WithError(err).WithField("source", s.name).Debug("Error reading packet")
			if errors.Is(err, pcap.NextErrorReadError) {
				return
			}
		}
	}
}

// DefaultInterface returns the first non-loopback device that has an address.
func DefaultInterface() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devs {
		for _, a := range d.Addresses {
			if a.IP != nil && !a.IP.IsLoopback() {
				return d.Name, nil
			}
		}
	}
	return "", ErrNoInterface
}

// Interfaces lists capture devices with their addresses.
func Interfaces() ([]pcap.Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devs, nil
}
