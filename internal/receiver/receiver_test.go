package receiver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/wire"
)

type memSink struct {
	name string
	data []byte
}

func (m *memSink) WriteBytes(name string, data []byte) error {
	m.name = name
	m.data = append([]byte(nil), data...)
	return nil
}

func newTestReceiver() (*Receiver, *memSink) {
	sink := &memSink{}
	log := logger.New(logger.Error, io.Discard, "")
	return New(sink, log, metrics.NewTransferMetrics()), sink
}

// startFakeServer answers each GET with a manifest, the data frames of
// content (skipping, on its first send only, any seq in dropOnce), and an
// EOT, and answers RETRANSMIT batches from a cache until stopped.
func startFakeServer(t *testing.T, content []byte, dropOnce map[uint32]bool) (*net.UDPConn, func()) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}

	frames := fragmentForTest(content)
	total := uint32(len(frames)) + 1
	cache := make(map[uint32][]byte)

	manifest := wire.Encode(wire.NewManifest(total))
	cache[0] = manifest
	for i, p := range frames {
		f := wire.NewData(uint32(i+1), p)
		cache[f.Seq] = wire.Encode(f)
	}
	eot := wire.Encode(wire.NewEOT())

	stop := make(chan struct{})
	go func() {
		buf := make([]byte, 2048)
		dropped := make(map[uint32]bool, len(dropOnce))
		for seq := range dropOnce {
			dropped[seq] = true
		}
		for {
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			n, caddr, err := conn.ReadFromUDP(buf)
			select {
			case <-stop:
				return
			default:
			}
			if err != nil {
				return
			}
			text := string(buf[:n])
			if req, ok := wire.ParseGet(text); ok {
				_ = req
				conn.WriteToUDP(manifest, caddr)
				for seq := uint32(1); seq < total; seq++ {
					if dropped[seq] {
						delete(dropped, seq)
						continue
					}
					conn.WriteToUDP(cache[seq], caddr)
				}
				conn.WriteToUDP(eot, caddr)
			} else if seqs, ok := wire.ParseRetransmit(text); ok {
				for _, seq := range seqs {
					if b, ok := cache[seq]; ok {
						conn.WriteToUDP(b, caddr)
					}
				}
				conn.WriteToUDP(eot, caddr)
			}
		}
	}()

	return conn, func() { close(stop); conn.Close() }
}

func fragmentForTest(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var frames [][]byte
	for off := 0; off < len(data); off += wire.MaxPayload {
		end := off + wire.MaxPayload
		if end > len(data) {
			end = len(data)
		}
		frames = append(frames, data[off:end])
	}
	return frames
}

func TestFetchHappyPath(t *testing.T) {
	content := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	conn, done := startFakeServer(t, content, nil)
	defer done()

	rcv, sink := newTestReceiver()
	err := rcv.Fetch(Config{ServerAddr: conn.LocalAddr().(*net.UDPAddr), FileName: "a.bin"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(sink.data, content) {
		t.Fatalf("sink = %x, want %x", sink.data, content)
	}
}

func TestFetchLostDataFrameRecovers(t *testing.T) {
	content := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	conn, done := startFakeServer(t, content, map[uint32]bool{1: true})
	defer done()

	rcv, sink := newTestReceiver()
	err := rcv.Fetch(Config{ServerAddr: conn.LocalAddr().(*net.UDPAddr), FileName: "a.bin"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(sink.data, content) {
		t.Fatalf("sink = %x, want %x", sink.data, content)
	}
}

func TestFetchLossSimDropsOnceThenAccepts(t *testing.T) {
	content := bytes.Repeat([]byte("q"), 5)
	conn, done := startFakeServer(t, content, nil)
	defer done()

	rcv, sink := newTestReceiver()
	err := rcv.Fetch(Config{
		ServerAddr: conn.LocalAddr().(*net.UDPAddr),
		FileName:   "b.bin",
		LossSim:    map[uint32]bool{1: true},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(sink.data, content) {
		t.Fatalf("sink = %x, want %x", sink.data, content)
	}
}

func TestFetchEmptyFile(t *testing.T) {
	conn, done := startFakeServer(t, nil, nil)
	defer done()

	rcv, sink := newTestReceiver()
	err := rcv.Fetch(Config{ServerAddr: conn.LocalAddr().(*net.UDPAddr), FileName: "empty.bin"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(sink.data) != 0 {
		t.Fatalf("sink = %x, want empty", sink.data)
	}
}

func TestFetchServerErrorAborts(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	go func() {
		buf := make([]byte, 2048)
		n, caddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if _, ok := wire.ParseGet(string(buf[:n])); ok {
			conn.WriteToUDP(wire.EncodeError("file not found"), caddr)
		}
	}()

	rcv, sink := newTestReceiver()
	err = rcv.Fetch(Config{ServerAddr: conn.LocalAddr().(*net.UDPAddr), FileName: "nope.bin"})
	if err == nil {
		t.Fatal("expected error")
	}
	if sink.data != nil {
		t.Fatalf("sink should be untouched on abort, got %x", sink.data)
	}
}

// TestFetchExhaustionAbortsWithoutSink covers §8 scenario 6: a server that
// never answers at all (offline, or simply never replying) must not be
// mistaken for an already-complete empty transfer. Fetch should run out
// config.AttemptMax timeout rounds and return ErrAborted, touching the
// sink zero times.
func TestFetchExhaustionAbortsWithoutSink(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Accept the GET so the socket never gets an ICMP port-unreachable,
	// but never send anything back.
	stop := make(chan struct{})
	go func() {
		buf := make([]byte, 2048)
		for {
			select {
			case <-stop:
				return
			default:
			}
			conn.SetReadDeadline(time.Now().Add(time.Second))
			conn.ReadFromUDP(buf)
		}
	}()
	defer close(stop)

	rcv, sink := newTestReceiver()
	err = rcv.Fetch(Config{ServerAddr: conn.LocalAddr().(*net.UDPAddr), FileName: "a.bin"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if sink.data != nil || sink.name != "" {
		t.Fatalf("sink should be untouched on exhaustion, got name=%q data=%x", sink.name, sink.data)
	}
}

func TestMissingComputation(t *testing.T) {
	st := newState(nil)
	st.haveTotal = true
	st.total = 4
	st.received[1] = []byte("a")
	st.received[3] = []byte("c")
	miss := st.missing()
	if len(miss) != 1 || miss[0] != 2 {
		t.Fatalf("missing = %v, want [2]", miss)
	}
}
