// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsReceivedTotal counts datagrams handed over by a source
	DatagramsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segrecv_datagrams_received_total",
			Help: "Total number of datagrams received",
		},
		[]string{"source"},
	)

	// DatagramBytesTotal counts raw bytes received
	DatagramBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segrecv_datagram_bytes_total",
			Help: "Total number of datagram bytes received",
		},
		[]string{"source"},
	)

	// DecodeErrorsTotal counts discarded datagrams by error kind
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segrecv_decode_errors_total",
			Help: "Total number of datagrams discarded because they failed to decode",
		},
		[]string{"kind"},
	)

	// PacketsRoutedTotal counts decoded packets applied to a group
	PacketsRoutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segrecv_packets_routed_total",
			Help: "Total number of packets routed to a reassembly group",
		},
		[]string{"type"},
	)

	// GroupsCreatedTotal counts reassembly groups created for new file ids
	GroupsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segrecv_groups_created_total",
			Help: "Total number of reassembly groups created",
		},
	)

	// GroupsComplete tracks groups whose packet count matches the expected count
	GroupsComplete = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "segrecv_groups_complete",
			Help: "Number of reassembly groups currently reporting complete",
		},
	)

	// FilesWrittenTotal counts output attempts by result
	FilesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segrecv_files_written_total",
			Help: "Total number of reassembled files written, by result",
		},
		[]string{"result"},
	)

	// BytesWrittenTotal counts payload bytes written to output files
	BytesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segrecv_bytes_written_total",
			Help: "Total number of bytes written to output files",
		},
	)

	// JobDurationSeconds measures receive-to-written time of a job
	JobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segrecv_job_duration_seconds",
			Help:    "Duration of a receive job in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 20), // 1ms to ~9min
		},
	)
)

// Result label values for FilesWrittenTotal
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)
