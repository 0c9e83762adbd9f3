// Package integration exercises a real sender.Server against a real
// receiver.Receiver over loopback UDP, covering the end-to-end scenarios
// a unit test on either side alone can't reach.
package integration

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/receiver"
	"github.com/relaywire/filewire/internal/sender"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/wire"
)

func startServer(t *testing.T, dir string) (*sender.Server, *net.UDPAddr) {
	t.Helper()
	log := logger.New(logger.Error, io.Discard, "")
	srv := sender.New(transfer.DiskSource{BaseDir: dir}, log, &metrics.ServerMetrics{})

	if err := srv.Listen("127.0.0.1", 0); err != nil {
		t.Fatal(err)
	}
	bound := srv.Addr()
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv, bound
}

func fetchFile(t *testing.T, addr *net.UDPAddr, name, outDir string, lossSim map[uint32]bool) ([]byte, error) {
	t.Helper()
	log := logger.New(logger.Error, io.Discard, "")
	m := metrics.NewTransferMetrics()
	sink := transfer.DiskSink{BaseDir: outDir}
	rcv := receiver.New(sink, log, m)

	err := rcv.Fetch(receiver.Config{ServerAddr: addr, FileName: name, LossSim: lossSim})
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(outDir, name))
}

func TestEndToEndHappyPath(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	content := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	if err := os.WriteFile(filepath.Join(srcDir, "a.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, addr := startServer(t, srcDir)
	got, err := fetchFile(t, addr, "a.bin", outDir, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("got %x, want %x", got, content)
	}
}

func TestEndToEndLostDataFrame(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	content := bytes.Repeat([]byte("r"), wire.MaxPayload+500)
	if err := os.WriteFile(filepath.Join(srcDir, "b.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, addr := startServer(t, srcDir)
	got, err := fetchFile(t, addr, "b.bin", outDir, map[uint32]bool{1: true, 2: true})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("mismatch after simulated loss")
	}
}

func TestEndToEndPartialBatchRetransmit(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	// Sized to fragment into exactly 25 data frames at the real MaxPayload.
	content := bytes.Repeat([]byte{0xAB}, wire.MaxPayload*24+1)
	if err := os.WriteFile(filepath.Join(srcDir, "c.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	lossSim := make(map[uint32]bool)
	for seq := uint32(2); seq <= 25; seq += 2 {
		lossSim[seq] = true
	}

	_, addr := startServer(t, srcDir)
	got, err := fetchFile(t, addr, "c.bin", outDir, lossSim)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("mismatch after partial batch retransmit")
	}
}

func TestEndToEndFileNotFound(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	_, addr := startServer(t, srcDir)
	_, err := fetchFile(t, addr, "nope.bin", outDir, nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "nope.bin")); statErr == nil {
		t.Fatal("sink file should not have been created on abort")
	}
}

func TestEndToEndEmptyFile(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "empty.bin"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, addr := startServer(t, srcDir)
	got, err := fetchFile(t, addr, "empty.bin", outDir, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

// TestEndToEndExhaustion covers §8 scenario 6: a sender that never answers
// at all (offline, or a firewall swallowing every datagram) must not be
// mistaken for an empty, already-complete transfer. The receiver should
// exhaust its attempt bound and abort with the sink untouched.
func TestEndToEndExhaustion(t *testing.T) {
	outDir := t.TempDir()

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// A listener that accepts the GET (so nothing ICMP-refuses the
	// socket) but never replies, simulating a sender that is up but
	// unresponsive.
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

	_, err = fetchFile(t, conn.LocalAddr().(*net.UDPAddr), "a.bin", outDir, nil)
	if !errors.Is(err, receiver.ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "a.bin")); statErr == nil {
		t.Fatal("sink file should not have been created on exhaustion")
	}
}
