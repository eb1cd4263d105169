package cmd

import (
	"fmt"
	"time"

	"github.com/meshpay/meshledger/config"
	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/ledger"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/p2p"
	"github.com/meshpay/meshledger/store"
)

// nodeContext is the local state shared by every command: configuration,
// node key, and a ledger restored from the store.
type nodeContext struct {
	cfg       *config.GenesisConfig
	key       *identity.KeyPair
	nodeID    string
	gossipCfg *config.GossipConfig
	ledger    *ledger.Ledger
	store     store.LedgerStore
	meta      store.StateMetaStore
}

func openNode(path string) (*nodeContext, error) {
	cfg, err := config.LoadGenesisConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	privKey, err := config.LoadEd25519PrivKey(cfg.SelfNode.PrivKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	key, err := identity.KeyPairFromPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	if cfg.SelfNode.PubKey != "" && cfg.SelfNode.PubKey != key.PublicKey() {
		return nil, fmt.Errorf("private key %s does not match configured pubkey %s", cfg.SelfNode.PrivKeyPath, cfg.SelfNode.PubKey)
	}
	nodeID, err := p2p.NodeIDFromPrivKey(privKey)
	if err != nil {
		return nil, err
	}

	gossipCfg := config.DefaultGossipConfig()
	ledgerCfg := config.DefaultLedgerConfig()
	if cfg.TuningPath != "" {
		if gossipCfg, err = config.LoadGossipConfig(cfg.TuningPath); err != nil {
			return nil, fmt.Errorf("failed to load gossip config: %w", err)
		}
		if ledgerCfg, err = config.LoadLedgerConfig(cfg.TuningPath); err != nil {
			return nil, fmt.Errorf("failed to load ledger config: %w", err)
		}
	}

	ls, meta, err := store.CreateStore(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ld := ledger.NewLedger(nodeID, identity.NewEd25519Verifier(), ledger.Options{
		MaxOrphans:     ledgerCfg.MaxOrphans,
		ReservationTTL: time.Duration(ledgerCfg.ReservationTTLMs) * time.Millisecond,
	})
	snap, err := ls.Load()
	if err != nil {
		ls.MustClose()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if snap != nil {
		if err := ld.Restore(snap); err != nil {
			ls.MustClose()
			return nil, fmt.Errorf("failed to restore ledger: %w", err)
		}
	}
	if err := ld.InitGenesis(cfg.GenesisOutputs()); err != nil {
		ls.MustClose()
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	logx.Info("CMD", fmt.Sprintf("Opened ledger of node %s at epoch %d", nodeID, ld.Epoch()))
	return &nodeContext{
		cfg:       cfg,
		key:       key,
		nodeID:    nodeID,
		gossipCfg: gossipCfg,
		ledger:    ld,
		store:     ls,
		meta:      meta,
	}, nil
}

func (n *nodeContext) Close() {
	n.store.MustClose()
}
