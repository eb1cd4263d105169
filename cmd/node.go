package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshpay/meshledger/events"
	"github.com/meshpay/meshledger/exception"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"
	"github.com/meshpay/meshledger/p2p"
	"github.com/meshpay/meshledger/service"
	"github.com/meshpay/meshledger/transaction"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the mesh node",
	Long: `Run the node: restore the local ledger, join the delta topic, answer
sync requests and gossip local changes. The node keeps working without any
peer and catches up with every peer it later connects to.`,
	Run: func(cmd *cobra.Command, args []string) {
		runNode(configPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(path string) {
	node, err := openNode(path)
	if err != nil {
		log.Fatalf("Failed to open node: %v", err)
	}
	defer node.Close()

	monitoring.InitMetrics()
	startMetricsServer(node.cfg.SelfNode.MetricsAddr)

	netClient, err := p2p.NewNetwork(p2p.Config{
		PrivKey:       node.key.PrivateKey(),
		ListenAddr:    node.cfg.SelfNode.Libp2pAddr,
		Topic:         node.gossipCfg.Topic,
		SyncProtocol:  node.gossipCfg.SyncProtocol,
		SeenCacheSize: node.gossipCfg.SeenCacheSize,

		SyncRequestsPerMinute: node.gossipCfg.SyncRequestsPerMinute,
	})
	if err != nil {
		log.Fatalf("Failed to initialize network: %v", err)
	}
	defer netClient.Close()

	router := events.NewEventRouter(events.NewEventBus())
	subID, eventCh := router.Subscribe(events.EventTxRejected, events.EventConflictResolved)
	defer router.Unsubscribe(subID)
	exception.SafeGo("LedgerEventLog", func() { logLedgerEvents(eventCh) })
	svc := service.NewLedgerService(node.ledger, node.store, node.meta, router, netClient, node.gossipCfg)
	if err := svc.Persist(); err != nil {
		log.Fatalf("Failed to persist ledger: %v", err)
	}

	if err := netClient.Start(svc, node.cfg.SelfNode.BootstrapPeers); err != nil {
		log.Fatalf("Failed to start network: %v", err)
	}
	logx.Info("NODE", fmt.Sprintf("Node %s running, address %s", node.nodeID, netClient.GetOwnAddress()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	exception.SafeGoWithPanic("PublishLoop", func() {
		defer close(done)
		svc.Run(ctx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logx.Info("NODE", "Received signal ", sig.String(), ", shutting down")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logx.Warn("NODE", "Publish loop did not stop in time")
	}
}

func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	exception.SafeGo("MetricsServer", func() {
		logx.Info("NODE", "Serving metrics on ", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("NODE", "Metrics server stopped: ", err)
		}
	})
}

// logLedgerEvents reports rejections and conflict resolutions until the
// subscription is closed.
func logLedgerEvents(ch <-chan events.LedgerEvent) {
	for e := range ch {
		switch ev := e.(type) {
		case *events.TxRejected:
			logx.Warn("NODE:EVENTS", fmt.Sprintf("Transaction %s rejected (%s, %s): %s", transaction.ShortID(ev.TxID()), ev.Code(), ev.Source(), ev.Detail()))
		case *events.ConflictResolved:
			logx.Info("NODE:EVENTS", fmt.Sprintf("%d conflicts resolved at epoch %d", ev.Count(), ev.Epoch()))
		}
	}
}
