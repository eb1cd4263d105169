package config

import "github.com/meshpay/meshledger/store"

// NodeConfig represents a node's configuration
type NodeConfig struct {
	PubKey         string   `yaml:"pubkey"`
	PrivKeyPath    string   `yaml:"privkey_path"`
	Libp2pAddr     string   `yaml:"libp2p_addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
}

// Allocation is one genesis output. Owner accepts a base58 key or a DID.
type Allocation struct {
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	SelfNode   NodeConfig        `yaml:"self_node"`
	Store      store.StoreConfig `yaml:"store"`
	Genesis    []Allocation      `yaml:"genesis"`
	TuningPath string            `yaml:"tuning_path"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
