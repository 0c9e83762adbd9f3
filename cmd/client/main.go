// Command client is the reliable-file-delivery receiver: it requests a
// named file from a server address and writes the reassembled bytes to
// an output path, optionally simulating the loss of specific sequence
// numbers to exercise the retransmission path.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/receiver"
	"github.com/relaywire/filewire/internal/transfer"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8083", "server address")
	file := flag.String("file", "", "remote filename to request")
	out := flag.String("o", "", "output path (default: recv_<filename> in the current directory)")
	lossSim := flag.String("loss-sim", "", "comma-separated seqs to drop once, for exercising retransmission")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: client -addr host:port -file name [-o out] [-loss-sim 1,5,9]")
		os.Exit(2)
	}

	serverAddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}

	lossSeqs, err := parseLossSim(*lossSim)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}

	outPath := *out
	if outPath == "" {
		outPath = "recv_" + filepath.Base(*file)
	}

	level := logger.Info
	if *verbose {
		level = logger.Debug
	}
	log := logger.New(level, os.Stdout, "client")
	m := metrics.NewTransferMetrics()
	sink := transfer.DiskSink{BaseDir: filepath.Dir(outPath)}
	rcv := receiver.New(sink, log, m)

	err = rcv.Fetch(receiver.Config{
		ServerAddr: serverAddr,
		FileName:   *file,
		OutputName: filepath.Base(outPath),
		LossSim:    lossSeqs,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", outPath)
}

func parseLossSim(text string) (map[uint32]bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	out := make(map[uint32]bool)
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid seq %q: %w", field, err)
		}
		out[uint32(n)] = true
	}
	return out, nil
}
