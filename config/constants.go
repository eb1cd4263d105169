package config

const (
	DefaultTopic           = "meshledger/deltas/1"
	DefaultSyncProtocol    = "/meshledger/sync/1.0.0"
	DefaultPublishInterval = 2000
	DefaultMaxDeltaTxs     = 2048
	DefaultSeenCacheSize   = 8192
	DefaultMaxOrphans      = 4096
	DefaultReservationTTL  = 30000

	DefaultSyncRequestsPerMinute = 30
)
