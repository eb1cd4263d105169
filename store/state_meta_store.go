package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/meshpay/meshledger/db"
)

// StateMetaStore stores auxiliary state metadata: the registry digest
// observed at each committed epoch, so operators can compare nodes.
// Keys:
// - PrefixDigestByEpoch + <8-byte big-endian epoch> => 32-byte digest
// - MetaKeyLatestDigestKey => 8-byte epoch of the latest digest
type StateMetaStore interface {
	SetDigest(epoch uint64, digest [32]byte) error
	GetDigest(epoch uint64) ([32]byte, bool, error)
	LatestDigest() (uint64, [32]byte, bool, error)
}

type GenericStateMetaStore struct {
	provider db.DatabaseProvider
}

func NewGenericStateMetaStore(provider db.DatabaseProvider) *GenericStateMetaStore {
	return &GenericStateMetaStore{provider: provider}
}

func (s *GenericStateMetaStore) epochToDigestKey(epoch uint64) []byte {
	key := make([]byte, len(PrefixDigestByEpoch)+8)
	copy(key, PrefixDigestByEpoch)
	binary.BigEndian.PutUint64(key[len(PrefixDigestByEpoch):], epoch)
	return key
}

func (s *GenericStateMetaStore) SetDigest(epoch uint64, digest [32]byte) error {
	batch := s.provider.Batch()
	defer batch.Close()
	batch.Put(s.epochToDigestKey(epoch), digest[:])
	batch.Put([]byte(MetaKeyLatestDigestKey), encodeUint64(epoch))
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to store digest for epoch %d: %w", epoch, err)
	}
	return nil
}

func (s *GenericStateMetaStore) GetDigest(epoch uint64) ([32]byte, bool, error) {
	key := s.epochToDigestKey(epoch)
	value, err := s.provider.Get(key)
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("failed to get digest for epoch %d: %w", epoch, err)
	}
	if len(value) == 0 {
		return [32]byte{}, false, nil
	}
	if len(value) != sha256.Size {
		return [32]byte{}, false, fmt.Errorf("invalid digest length: %d", len(value))
	}
	var out [32]byte
	copy(out[:], value)
	return out, true, nil
}

func (s *GenericStateMetaStore) LatestDigest() (uint64, [32]byte, bool, error) {
	raw, err := s.provider.Get([]byte(MetaKeyLatestDigestKey))
	if err != nil {
		return 0, [32]byte{}, false, fmt.Errorf("failed to get latest digest epoch: %w", err)
	}
	if len(raw) != 8 {
		return 0, [32]byte{}, false, nil
	}
	epoch := binary.BigEndian.Uint64(raw)
	digest, ok, err := s.GetDigest(epoch)
	return epoch, digest, ok, err
}
