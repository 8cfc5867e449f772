package capture

import (
	"math/rand"
	"net"
	"path/filepath"
	"testing"
	"time"

	"FlowGuard/internal/engine/protocol"
	"FlowGuard/internal/model"
	"FlowGuard/internal/pcapgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T) (string, int, int) {
	t.Helper()
	start := time.Unix(1700000000, 0)
	specs := pcapgen.Conversation(net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 40000, 80, 10, start, 10*time.Millisecond)
	specs = append(specs, pcapgen.Random(rand.New(rand.NewSource(1)), 40, start.Add(time.Second), time.Millisecond)...)

	udp := 0
	for _, s := range specs {
		if s.Protocol == model.ProtoUDP {
			udp++
		}
	}
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, pcapgen.WriteFile(path, specs))
	return path, len(specs), udp
}

func TestReplayFile(t *testing.T) {
	path, total, _ := writeCapture(t)

	src, err := OpenFile(path, "")
	require.NoError(t, err)
	defer src.Close()
	assert.True(t, src.Offline())
	assert.Equal(t, path, src.Name())

	var parsed int
	var first *model.PacketInfo
	for pkt := range src.Packets() {
		info, err := protocol.Parse(pkt)
		require.NoError(t, err)
		if first == nil {
			first = info
		}
		parsed++
	}
	assert.Equal(t, total, parsed)
	require.NotNil(t, first)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.Timestamp.UTC())
	assert.True(t, first.Flags.SYN)
}

func TestReplayFileWithFilter(t *testing.T) {
	path, _, udp := writeCapture(t)

	src, err := FileOpener(path, "udp")("ignored")
	require.NoError(t, err)
	defer src.Close()

	n := 0
	for range src.Packets() {
		n++
	}
	assert.Equal(t, udp, n)
}

func TestOpenErrors(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.pcap"), "")
	assert.Error(t, err)

	path, _, _ := writeCapture(t)
	_, err = OpenFile(path, "not a filter ((")
	assert.ErrorContains(t, err, "invalid BPF filter")
}

func TestCloseIsIdempotent(t *testing.T) {
	path, _, _ := writeCapture(t)
	src, err := OpenFile(path, "")
	require.NoError(t, err)
	src.Close()
	src.Close()
	for range src.Packets() {
	}
}
