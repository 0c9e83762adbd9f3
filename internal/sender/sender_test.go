package sender

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/wire"
)

type memSource struct {
	files map[string][]byte
}

func (m memSource) ReadAll(name string) ([]byte, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, transfer.ErrNotFound
	}
	return data, nil
}

func newTestServer(t *testing.T, files map[string][]byte) (*Server, *net.UDPConn, func()) {
	t.Helper()
	log := logger.New(logger.Error, io.Discard, "")
	srv := New(memSource{files: files}, log, &metrics.ServerMetrics{})

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	srv.conn = conn
	go srv.serve(conn)

	client, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	return srv, client, func() {
		client.Close()
		srv.Close()
	}
}

func recvFrame(t *testing.T, client *net.UDPConn) wire.Frame {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestHandleGetServesManifestDataAndEOT(t *testing.T) {
	content := bytes.Repeat([]byte("x"), wire.MaxPayload+10)
	_, client, done := newTestServer(t, map[string][]byte{"a.bin": content})
	defer done()

	client.Write(wire.EncodeGet("a.bin", 0))

	manifest := recvFrame(t, client)
	if !manifest.IsManifest() {
		t.Fatalf("expected manifest first, got seq=%d", manifest.Seq)
	}
	total, err := wire.DecodeManifest(manifest)
	if err != nil || total != 3 {
		t.Fatalf("manifest total = %d, err %v, want 3", total, err)
	}

	for i := 0; i < 2; i++ {
		f := recvFrame(t, client)
		if !f.IsData() {
			t.Fatalf("expected data frame, got seq=%d", f.Seq)
		}
		if !wire.VerifyChecksum(f) {
			t.Fatalf("checksum mismatch on seq=%d", f.Seq)
		}
	}

	eot := recvFrame(t, client)
	if !eot.IsEOT() {
		t.Fatalf("expected EOT, got seq=%d", eot.Seq)
	}
}

func TestHandleGetUnknownFileSendsError(t *testing.T) {
	_, client, done := newTestServer(t, map[string][]byte{})
	defer done()

	client.Write(wire.EncodeGet("missing.bin", 0))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	reason, ok := wire.ParseError(string(buf[:n]))
	if !ok {
		t.Fatalf("expected error datagram, got %q", buf[:n])
	}
	if reason != "file not found" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestHandleRetransmitResendsCachedFrame(t *testing.T) {
	content := bytes.Repeat([]byte("y"), 50)
	_, client, done := newTestServer(t, map[string][]byte{"b.bin": content})
	defer done()

	client.Write(wire.EncodeGet("b.bin", 0))
	recvFrame(t, client) // manifest
	data := recvFrame(t, client)
	recvFrame(t, client) // EOT

	client.Write(wire.EncodeRetransmit([]uint32{data.Seq}))
	resent := recvFrame(t, client)
	if resent.Seq != data.Seq || !bytes.Equal(resent.Payload, data.Payload) {
		t.Fatalf("resent frame mismatch: got seq=%d payload=%q", resent.Seq, resent.Payload)
	}
	eot := recvFrame(t, client)
	if !eot.IsEOT() {
		t.Fatalf("expected trailing EOT after retransmit, got seq=%d", eot.Seq)
	}
}

func TestMalformedControlTextGetsError(t *testing.T) {
	_, client, done := newTestServer(t, map[string][]byte{})
	defer done()

	client.Write([]byte("GET "))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := wire.ParseError(string(buf[:n])); !ok {
		t.Fatalf("expected error datagram, got %q", buf[:n])
	}
}

func TestFragment(t *testing.T) {
	data := bytes.Repeat([]byte("z"), wire.MaxPayload*2+1)
	frames := fragment(data)
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}
	if len(frames[0]) != wire.MaxPayload || len(frames[1]) != wire.MaxPayload || len(frames[2]) != 1 {
		t.Fatalf("unexpected fragment sizes: %d %d %d", len(frames[0]), len(frames[1]), len(frames[2]))
	}
}

func TestFragmentEmpty(t *testing.T) {
	if frames := fragment(nil); frames != nil {
		t.Fatalf("fragment(nil) = %v, want nil", frames)
	}
}
