package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/types"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open file: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode YAML: ", err)
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded config: SelfNode=%+v, Genesis=%d allocations", cfgFile.Config.SelfNode, len(cfgFile.Config.Genesis)))
	return &cfgFile.Config, nil
}

// GenesisOutputs converts the configured allocation into ledger outputs.
func (c *GenesisConfig) GenesisOutputs() []types.TxOutput {
	outs := make([]types.TxOutput, len(c.Genesis))
	for i, a := range c.Genesis {
		outs[i] = types.TxOutput{Owner: a.Owner, Amount: a.Amount}
	}
	return outs
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d in %s", len(key), path)
	}
	return ed25519.PrivateKey(key), nil
}

type GossipConfig struct {
	Topic             string `ini:"topic"`
	SyncProtocol      string `ini:"sync_protocol"`
	PublishIntervalMs int    `ini:"publish_interval_ms"`
	MaxDeltaTxs       int    `ini:"max_delta_txs"`
	SeenCacheSize     int    `ini:"seen_cache_size"`

	// SyncRequestsPerMinute caps the sync requests served to one peer.
	SyncRequestsPerMinute int `ini:"sync_requests_per_minute"`
}

type LedgerConfig struct {
	MaxOrphans int `ini:"max_orphans"`
	// ReservationTTLMs bounds how long a transfer may hold its inputs.
	ReservationTTLMs int `ini:"reservation_ttl_ms"`
}

func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		Topic:             DefaultTopic,
		SyncProtocol:      DefaultSyncProtocol,
		PublishIntervalMs: DefaultPublishInterval,
		MaxDeltaTxs:       DefaultMaxDeltaTxs,
		SeenCacheSize:     DefaultSeenCacheSize,

		SyncRequestsPerMinute: DefaultSyncRequestsPerMinute,
	}
}

func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{MaxOrphans: DefaultMaxOrphans, ReservationTTLMs: DefaultReservationTTL}
}

// LoadGossipConfig reads the [gossip] section from an .ini file. Keys
// missing from the file keep their defaults.
func LoadGossipConfig(path string) (*GossipConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	gossipSection := cfg.Section("gossip")
	gossipCfg := DefaultGossipConfig()
	err = gossipSection.MapTo(gossipCfg)
	if err != nil {
		return nil, err
	}
	return gossipCfg, nil
}

func LoadLedgerConfig(path string) (*LedgerConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	ledgerSection := cfg.Section("ledger")
	ledgerCfg := DefaultLedgerConfig()
	err = ledgerSection.MapTo(ledgerCfg)
	if err != nil {
		return nil, err
	}
	return ledgerCfg, nil
}
