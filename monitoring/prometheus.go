package monitoring

import (
	"net/http"
	"sync"
	"time"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TxRejectedReason string

var (
	TxMalformed       TxRejectedReason = "malformed"
	TxUnknownInput    TxRejectedReason = "unknown_input"
	TxBadSignature    TxRejectedReason = "bad_signature"
	TxDoubleSpend     TxRejectedReason = "double_spend"
	TxStaleRegistry   TxRejectedReason = "stale_registry"
	TxRejectedUnknown TxRejectedReason = "other"
)

// ReasonFromCode maps a ledger reject code to its metric label
func ReasonFromCode(code lerrors.RejectCode) TxRejectedReason {
	switch code {
	case lerrors.CodeMalformed:
		return TxMalformed
	case lerrors.CodeUnknownInput:
		return TxUnknownInput
	case lerrors.CodeBadSignature:
		return TxBadSignature
	case lerrors.CodeDoubleSpend:
		return TxDoubleSpend
	case lerrors.CodeStaleRegistry:
		return TxStaleRegistry
	default:
		return TxRejectedUnknown
	}
}

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	acceptedTxCount   *prometheus.CounterVec
	rejectedTxCount   *prometheus.CounterVec
	resolvedConflicts prometheus.Counter
	orphanedTxCount   prometheus.Gauge
	registryEpoch     prometheus.Gauge
	registryOutputs   *prometheus.GaugeVec
	unspentValue      prometheus.Gauge
	mergeDuration     prometheus.Histogram
	deltaSizeTxs      prometheus.Histogram
	gossipMessages    *prometheus.CounterVec
	peerCount         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshledger_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		acceptedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshledger_accepted_tx_count",
				Help: "The total number of transactions that became accepted",
			},
			[]string{"source"},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshledger_rejected_tx_count",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		resolvedConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshledger_resolved_conflict_count",
				Help: "The total number of outputs settled as Spent after a conflict",
			},
		),
		orphanedTxCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshledger_orphaned_tx",
				Help: "Transactions parked until their inputs arrive",
			},
		),
		registryEpoch: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshledger_registry_epoch",
				Help: "The current registry epoch",
			},
		),
		registryOutputs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meshledger_registry_outputs",
				Help: "Number of outputs per state",
			},
			[]string{"state"},
		),
		unspentValue: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshledger_unspent_value",
				Help: "Sum of all unspent output amounts",
			},
		),
		mergeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "meshledger_merge_duration_seconds",
				Help: "Time spent importing one delta",
			},
		),
		deltaSizeTxs: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meshledger_delta_size_txs",
				Help:    "Number of transactions per published delta",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		gossipMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshledger_gossip_messages",
				Help: "Gossip messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshledger_peer_count",
				Help: "The total number of peer connections",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshledger_panic_count",
				Help: "Panics recovered in background goroutines",
			},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	initOnce    sync.Once
)

// InitMetrics initialize metrics for node but not expose to api yet.
// Until it is called every recorder below is a no-op.
func InitMetrics() {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
		nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordAcceptedTx(source string, n int) {
	if nodeMetrics == nil || n <= 0 {
		return
	}
	nodeMetrics.acceptedTxCount.With(prometheus.Labels{"source": source}).Add(float64(n))
}

func RecordRejectedTx(reason TxRejectedReason) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.rejectedTxCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func RecordResolvedConflicts(n int) {
	if nodeMetrics == nil || n <= 0 {
		return
	}
	nodeMetrics.resolvedConflicts.Add(float64(n))
}

func SetOrphanedTx(n int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.orphanedTxCount.Set(float64(n))
}

func SetRegistryEpoch(epoch uint64) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.registryEpoch.Set(float64(epoch))
}

func SetRegistryOutputs(state string, n int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.registryOutputs.With(prometheus.Labels{"state": state}).Set(float64(n))
}

func SetUnspentValue(v float64) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.unspentValue.Set(v)
}

func RecordMergeDuration(duration time.Duration) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.mergeDuration.Observe(duration.Seconds())
}

func RecordDeltaSize(txs int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.deltaSizeTxs.Observe(float64(txs))
}

func IncreaseGossipMessage(direction, msgType string) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.gossipMessages.With(prometheus.Labels{"direction": direction, "type": msgType}).Inc()
}

func SetPeerCount(peers int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.peerCount.Set(float64(peers))
}

func IncreasePanicCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.panicCount.Inc()
}
