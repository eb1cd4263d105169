package store

// Declare database key prefix for objects
const (
	PrefixOutput = "output:"
	PrefixTx     = "tx:"

	PrefixOrphan    = "orphan:"
	PrefixBlacklist = "blacklist:"
	PrefixPeerEpoch = "peer_epoch:"

	PrefixMeta             = "meta:"
	MetaKeyEpoch           = PrefixMeta + "epoch"
	PrefixDigestByEpoch    = "digest:"
	MetaKeyLatestDigestKey = PrefixMeta + "latest_digest"
)
