package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sender-side Prometheus instruments.
var (
	SenderBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_sender_bytes_sent_total",
		Help: "Total frame bytes (header included) sent on first transmission by the sender, across all clients; retransmissions are not counted here.",
	})
	SenderSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_sender_segments_sent_total",
		Help: "Total data frames transmitted by the sender, across all clients.",
	})
	SenderRetransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_sender_retransmissions_total",
		Help: "Total frames resent from the retransmission cache.",
	})
	SenderRetransmitRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_sender_retransmit_requests_total",
		Help: "Total RETRANSMIT control datagrams received.",
	})
	SenderActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filewire_sender_active_clients",
		Help: "Number of clients with an in-progress transfer.",
	})
)

// Receiver-side Prometheus instruments.
var (
	ReceiverBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_receiver_bytes_received_total",
		Help: "Total valid payload bytes accepted by the receiver.",
	})
	ReceiverSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_receiver_segments_received_total",
		Help: "Total valid data frames accepted by the receiver.",
	})
	ReceiverChecksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_receiver_checksum_failures_total",
		Help: "Total frames discarded for a checksum mismatch.",
	})
	ReceiverTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_receiver_read_timeouts_total",
		Help: "Total receive-loop read timeouts.",
	})
	ReceiverRetransmitRounds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewire_receiver_retransmit_rounds_total",
		Help: "Total REPAIRING rounds entered (gaps detected after a receive pass).",
	})
)

// Handler returns the HTTP handler that serves the Prometheus exposition
// format, for wiring into a server's /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
