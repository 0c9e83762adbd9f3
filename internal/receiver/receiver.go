// Package receiver implements the client half of the protocol: it sends
// a GET request, accumulates data frames keyed by sequence number,
// verifies their integrity, and drives selective-repeat retransmission
// rounds until the file is complete or the attempt bound is exhausted.
package receiver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/relaywire/filewire/internal/config"
	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/wire"
)

// State names the receiver's position in the reassembly state machine.
type State int

const (
	Requesting State = iota
	Receiving
	Repairing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "REQUESTING"
	case Receiving:
		return "RECEIVING"
	case Repairing:
		return "REPAIRING"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ErrAborted is returned when the server reported an ERROR or the
// attempt bound was reached before reassembly completed. The sink is
// never written in either case.
var ErrAborted = errors.New("receiver: transfer aborted")

// Config parameterizes a single transfer attempt.
type Config struct {
	ServerAddr *net.UDPAddr
	FileName   string
	// OutputName is the name passed to the sink. Defaults to FileName when
	// empty, but callers that rename on receipt (e.g. a "recv_" prefix)
	// can set it independently of the remote path requested via GET.
	OutputName string
	// LossSim is the set of seqs the receiver pretends to drop exactly
	// once, on first delivery, to exercise retransmission deterministically.
	LossSim map[uint32]bool
}

// Receiver runs one GET-to-sink transfer over a UDP socket it owns.
type Receiver struct {
	sink    transfer.Sink
	log     *logger.Logger
	metrics *metrics.TransferMetrics
}

// New creates a Receiver writing the reassembled file to sink.
func New(sink transfer.Sink, log *logger.Logger, m *metrics.TransferMetrics) *Receiver {
	return &Receiver{sink: sink, log: log, metrics: m}
}

// state carries the mutable reassembly bookkeeping across receive/repair
// rounds within a single Fetch call.
type state struct {
	received  map[uint32][]byte
	total     uint32 // 0 until manifest arrives
	haveTotal bool
	maxSeq    uint32
	lossSim   map[uint32]bool
	attempts  int
	errText   string
	aborted   bool
}

func newState(lossSim map[uint32]bool) *state {
	ls := make(map[uint32]bool, len(lossSim))
	for seq := range lossSim {
		ls[seq] = true
	}
	return &state{received: make(map[uint32][]byte), lossSim: ls}
}

func (s *state) expected() uint32 {
	if s.haveTotal {
		return s.total
	}
	return s.maxSeq + 1
}

// missing returns the sorted seqs in [1, expected-1] not yet received.
func (s *state) missing() []uint32 {
	exp := s.expected()
	if exp == 0 {
		return nil
	}
	var miss []uint32
	for seq := uint32(1); seq < exp; seq++ {
		if _, ok := s.received[seq]; !ok {
			miss = append(miss, seq)
		}
	}
	return miss
}

// Fetch requests cfg.FileName from the server and writes the reassembled
// file to the receiver's sink on success.
func (r *Receiver) Fetch(cfg Config) error {
	conn, err := net.DialUDP("udp", nil, cfg.ServerAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	st := newState(cfg.LossSim)

	if err := r.sendGet(conn, cfg.FileName, 0); err != nil {
		return err
	}
	r.log.Info("requested %s from %s", cfg.FileName, cfg.ServerAddr)

	for {
		progressed, timedOut, err := r.receiveRound(conn, st)
		if err != nil {
			return err
		}
		if st.aborted {
			r.log.Error("aborted: %s", st.errText)
			return fmt.Errorf("%w: %s", ErrAborted, st.errText)
		}

		miss := st.missing()
		// A manifest or at least one data seq must have arrived before an
		// empty missing set can mean "done" -- otherwise an offline server
		// (no manifest, maxSeq still 0) would fabricate a vacuous
		// expected()==1 and complete with nothing ever having been heard.
		heardAnything := st.haveTotal || len(st.received) > 0
		if len(miss) == 0 && heardAnything {
			outputName := cfg.OutputName
			if outputName == "" {
				outputName = cfg.FileName
			}
			return r.writeSink(outputName, st)
		}

		if !progressed && timedOut {
			st.attempts++
			r.metrics.AddTimeout()
			if heardAnything {
				r.log.Warn("receive timeout, attempt %d/%d, %d seqs missing", st.attempts, config.AttemptMax, len(miss))
			} else {
				r.log.Warn("receive timeout, attempt %d/%d, nothing heard from server yet", st.attempts, config.AttemptMax)
			}
			if st.attempts >= config.AttemptMax {
				if !heardAnything {
					return fmt.Errorf("%w: attempt bound reached, server never responded", ErrAborted)
				}
				return fmt.Errorf("%w: attempt bound reached with %d seqs missing", ErrAborted, len(miss))
			}
		}

		if len(miss) > 0 {
			r.metrics.AddRetransmitRound()
		}
		if err := r.requestRetransmit(conn, miss); err != nil {
			return err
		}
	}
}

func (r *Receiver) sendGet(conn *net.UDPConn, name string, start uint32) error {
	_, err := conn.Write(wire.EncodeGet(name, start))
	return err
}

func (r *Receiver) requestRetransmit(conn *net.UDPConn, seqs []uint32) error {
	for off := 0; off < len(seqs); off += wire.MaxPacketsPerRequest {
		end := off + wire.MaxPacketsPerRequest
		if end > len(seqs) {
			end = len(seqs)
		}
		if _, err := conn.Write(wire.EncodeRetransmit(seqs[off:end])); err != nil {
			return err
		}
	}
	return nil
}

// receiveRound reads datagrams until EOT, a read timeout, or a server
// ERROR, applying each to st. It reports whether any new, valid frame was
// accepted during the round and whether the round ended on a read timeout;
// only a timed-out round with no new frame counts against the attempt bound.
func (r *Receiver) receiveRound(conn *net.UDPConn, st *state) (progressed, timedOut bool, err error) {
	buf := make([]byte, wire.HeaderSize+wire.MaxPayload)
	for {
		conn.SetReadDeadline(time.Now().Add(config.ReadDeadline))
		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return progressed, true, nil
			}
			return progressed, false, err
		}

		datagram := buf[:n]
		if wire.IsControlText(datagram) {
			if reason, ok := wire.ParseError(string(datagram)); ok {
				st.aborted = true
				st.errText = reason
				return progressed, false, nil
			}
			continue // stray control text from a misbehaving peer
		}

		f, err := wire.Decode(datagram)
		if err != nil {
			continue // short or malformed datagram: silently discarded
		}

		switch {
		case f.IsEOT():
			return progressed, false, nil
		case f.IsManifest():
			total, err := wire.DecodeManifest(f)
			if err != nil {
				continue
			}
			st.total = total
			st.haveTotal = true
		default:
			if r.acceptData(st, f) {
				progressed = true
			}
		}
	}
}

// acceptData applies loss simulation and checksum verification to a data
// frame, inserting it into the reassembly buffer on success.
func (r *Receiver) acceptData(st *state, f wire.Frame) bool {
	if st.haveTotal && f.Seq >= st.total {
		return false // outside [1, total-1]: protocol violation, discard
	}
	if st.lossSim[f.Seq] {
		delete(st.lossSim, f.Seq) // exactly one artificial loss per seq
		return false
	}
	if !wire.VerifyChecksum(f) {
		r.metrics.AddChecksumFailure()
		return false
	}
	if f.Seq > st.maxSeq {
		st.maxSeq = f.Seq
	}
	if _, already := st.received[f.Seq]; already {
		return false // idempotent: duplicate delivery is a no-op
	}
	st.received[f.Seq] = f.Payload
	r.metrics.AddSegmentReceived()
	r.metrics.AddBytesReceived(uint64(len(f.Payload)))
	return true
}

// writeSink concatenates payloads 1..expected-1 in ascending seq and
// delivers the reassembled bytes to the sink.
func (r *Receiver) writeSink(name string, st *state) error {
	exp := st.expected()
	var out []byte
	for seq := uint32(1); seq < exp; seq++ {
		payload, ok := st.received[seq]
		if !ok {
			return fmt.Errorf("receiver: missing seq %d at write time", seq)
		}
		out = append(out, payload...)
	}
	r.metrics.Finish()
	r.log.Info("transfer complete: %d bytes, %d frames", len(out), exp-1)
	return r.sink.WriteBytes(name, out)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
