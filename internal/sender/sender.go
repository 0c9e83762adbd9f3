// Package sender implements the server half of the protocol: it listens
// for GET and RETRANSMIT control datagrams, fragments a requested file
// into manifest/data/EOT frames, and serves selective-repeat
// retransmission requests from a per-client cache.
//
// States, per client address: IDLE -> SERVING -> COMPLETED, with FAILED
// handled inline (an I/O error during SERVING sends an ERROR datagram and
// returns to IDLE without tearing down the listening socket). There is no
// ACK channel, so SERVING -> COMPLETED is implicit: the cache for a client
// simply sits ready to answer retransmission requests until a new GET
// replaces it.
package sender

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/relaywire/filewire/internal/cache"
	"github.com/relaywire/filewire/internal/config"
	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/wire"
)

// State names a client worker's position in the sender state machine.
// It exists mainly for observability/testing; the implementation doesn't
// need to branch on it directly since transitions are driven by which
// control message arrives.
type State int

const (
	Idle State = iota
	Serving
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Serving:
		return "SERVING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// worker owns the retransmission cache and state for one client address.
// Per the protocol's design notes, option (a): a cache per transfer/worker
// rather than one process-wide map keyed by (client, seq).
type worker struct {
	mu    sync.Mutex
	cache *cache.Cache
	state State
	total uint32
}

// Server serves file transfers to requesting clients over a single UDP
// listener.
type Server struct {
	conn    *net.UDPConn
	source  transfer.Source
	log     *logger.Logger
	metrics *metrics.ServerMetrics

	mu      sync.Mutex
	workers map[string]*worker
}

// New creates a Server reading files from source. log and m may be nil to
// use no-op defaults is not supported; callers must supply both.
func New(source transfer.Source, log *logger.Logger, m *metrics.ServerMetrics) *Server {
	return &Server{source: source, log: log, metrics: m, workers: make(map[string]*worker)}
}

// Metrics returns the server's live counters.
func (s *Server) Metrics() metrics.ServerMetrics { return s.metrics.Snapshot() }

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() *net.UDPAddr { return s.conn.LocalAddr().(*net.UDPAddr) }

// Listen binds host:port. Call Serve afterward to process datagrams; the
// split lets callers learn the bound address (useful when port is 0)
// before blocking.
func (s *Server) Listen(host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetReadBuffer(config.DefaultReadBuffer)
	_ = conn.SetWriteBuffer(config.DefaultWriteBuffer)
	s.conn = conn
	return nil
}

// ListenAndServe binds host:port and processes datagrams until the
// listener is closed via Close.
func (s *Server) ListenAndServe(host string, port int) error {
	if err := s.Listen(host, port); err != nil {
		return err
	}
	s.log.Info("listening on %s:%d", host, port)
	return s.Serve()
}

// Serve processes datagrams on a socket already bound by Listen, until the
// listener is closed via Close.
func (s *Server) Serve() error {
	return s.serve(s.conn)
}

// Close stops the listener.
func (s *Server) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Server) serve(conn *net.UDPConn) error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Transport-local error: recovered locally, keep listening.
			if isClosedErr(err) {
				return nil
			}
			continue
		}
		text := string(buf[:n])
		s.dispatch(conn, addr, text)
	}
}

func (s *Server) dispatch(conn *net.UDPConn, addr *net.UDPAddr, text string) {
	switch {
	case strings.HasPrefix(text, "GET "):
		req, ok := wire.ParseGet(text)
		if !ok {
			conn.WriteToUDP(wire.EncodeError("malformed request"), addr)
			return
		}
		w := s.workerFor(addr)
		go s.handleGet(conn, addr, w, req.Path)
	case strings.HasPrefix(text, "RETRANSMIT "):
		seqs, ok := wire.ParseRetransmit(text)
		if !ok {
			conn.WriteToUDP(wire.EncodeError("malformed request"), addr)
			return
		}
		w := s.existingWorker(addr)
		if w == nil {
			return // no transfer in progress for this client: ignore
		}
		go s.handleRetransmit(conn, addr, w, seqs)
	default:
		// Unknown control text while IDLE: ignore.
	}
}

func (s *Server) workerFor(addr *net.UDPAddr) *worker {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[key]
	if !ok {
		w = &worker{state: Idle}
		s.workers[key] = w
	}
	return w
}

func (s *Server) existingWorker(addr *net.UDPAddr) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[addr.String()]
}

// handleGet loads the requested file, fragments it, and transmits the
// manifest, data frames (ascending seq), and EOT, caching each for
// retransmission. On failure to open the source, it replies with an
// ERROR datagram and leaves the worker's existing cache (if any) intact.
func (s *Server) handleGet(conn *net.UDPConn, addr *net.UDPAddr, w *worker, path string) {
	data, err := s.source.ReadAll(path)
	if err == transfer.ErrNotFound {
		conn.WriteToUDP(wire.EncodeError("file not found"), addr)
		w.mu.Lock()
		w.state = Idle
		w.mu.Unlock()
		return
	}
	if err != nil {
		conn.WriteToUDP(wire.EncodeError(err.Error()), addr)
		w.mu.Lock()
		w.state = Idle
		w.mu.Unlock()
		return
	}

	frames := fragment(data)
	c := cache.New()

	total := uint32(len(frames)) + 1 // manifest counted in total, per the wire format

	w.mu.Lock()
	w.cache = c
	w.total = total
	w.state = Serving
	w.mu.Unlock()

	s.metrics.ClientStarted()
	defer s.metrics.ClientFinished()

	manifest := wire.NewManifest(total)
	s.transmit(conn, addr, c, manifest)

	for i, payload := range frames {
		f := wire.NewData(uint32(i+1), payload)
		s.transmit(conn, addr, c, f)
	}

	// Best-effort crash-resume side-channel (§4.5): one batch persist of
	// the whole cache after the initial transmission, not per frame.
	persistPath := s.cachePersistPath(addr)
	if err := c.PersistTo(persistPath); err != nil {
		s.log.Warn("cache persist failed for %s: %v", addr, err)
	}

	s.transmit(conn, addr, c, wire.NewEOT())

	// No ACK channel means this EOT is as "clean" as the protocol ever
	// gets; discard the on-disk mirror rather than leave it behind.
	cache.Discard(persistPath)

	w.mu.Lock()
	w.state = Completed
	w.mu.Unlock()
	s.log.Info("served %s to %s: %d data frames, %d bytes", path, addr, len(frames), len(data))
}

// cachePersistPath derives a per-client temp-file path for the optional
// retransmission-cache side-channel (§4.5, §9 "Persistence side-channel").
func (s *Server) cachePersistPath(addr *net.UDPAddr) string {
	safe := strings.NewReplacer(":", "_", "/", "_").Replace(addr.String())
	return filepath.Join(os.TempDir(), "filewire-cache-"+safe+".json")
}

// transmit encodes f, sends it, and (for manifest/data frames, which is to
// say anything that isn't the EOT sentinel) caches the exact bytes sent so
// a later RETRANSMIT gets a byte-identical copy.
func (s *Server) transmit(conn *net.UDPConn, addr *net.UDPAddr, c *cache.Cache, f wire.Frame) {
	encoded := wire.Encode(f)
	n, err := conn.WriteToUDP(encoded, addr)
	if err != nil {
		return
	}
	if !f.IsEOT() {
		c.Put(f.Seq, encoded)
	}
	s.metrics.AddBytesSent(uint64(n))
	if f.IsData() {
		s.metrics.AddSegmentSent()
	}
}

// handleRetransmit resends cached frames for the requested seqs. If at
// least one frame was resent, a fresh EOT is emitted afterward so the
// receiver re-evaluates completion; a batch with no known seqs is a
// silent no-op.
func (s *Server) handleRetransmit(conn *net.UDPConn, addr *net.UDPAddr, w *worker, seqs []uint32) {
	s.metrics.AddRetransmitRequest()
	w.mu.Lock()
	c := w.cache
	w.mu.Unlock()
	if c == nil {
		return
	}

	resentAny := false
	for _, seq := range seqs {
		encoded, ok := c.Get(seq)
		if !ok {
			s.log.Warn("retransmit request for unknown seq=%d from %s", seq, addr)
			continue
		}
		if _, err := conn.WriteToUDP(encoded, addr); err != nil {
			continue
		}
		s.metrics.AddRetransmission()
		resentAny = true
	}
	if resentAny {
		conn.WriteToUDP(wire.Encode(wire.NewEOT()), addr)
	}
}

// fragment splits data into payload-sized slices, ready to become data
// frames at seq=1..len(result).
func fragment(data []byte) [][]byte {
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

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}
