// Command server is the reliable-file-delivery listener: it binds a UDP
// socket, answers GET and RETRANSMIT requests, and serves files out of a
// base directory.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/sender"
	"github.com/relaywire/filewire/internal/transfer"
)

func main() {
	host := flag.String("host", "127.0.0.1", "host/IP to bind")
	port := flag.Int("port", 8083, "UDP port to bind")
	baseDir := flag.String("dir", ".", "directory served to clients")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := logger.Info
	if *verbose {
		level = logger.Debug
	}
	log := logger.New(level, os.Stdout, "server")

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics listener stopped: %v", err)
			}
		}()
		log.Info("metrics exposed on %s/metrics", *metricsAddr)
	}

	source := transfer.DiskSource{BaseDir: *baseDir}
	srv := sender.New(source, log, &metrics.ServerMetrics{})

	log.Info("serving %s on %s:%d", *baseDir, *host, *port)
	if err := srv.ListenAndServe(*host, *port); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}
