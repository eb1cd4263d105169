package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// ComputeRegistryDigest hashes the settled content of r: every output with
// its state and every transaction with its status. Epochs are local
// bookkeeping and are left out, so two converged nodes produce the same
// digest regardless of the order they learned things in.
// Each output record is encoded as: id|owner|amount(8B BE)|status(1B)|spent_by|claimed_by...
// and each transaction record as: id|status(1B). Strings are length prefixed.
func ComputeRegistryDigest(r *Registry) [32]byte {
	h := sha256.New()
	buf := make([]byte, 8)

	for _, id := range sortedKeys(r.outputs) {
		out := r.outputs[id]
		writeString(h, buf, out.ID)
		writeString(h, buf, out.Owner)
		binary.BigEndian.PutUint64(buf, out.Amount)
		h.Write(buf)
		h.Write([]byte{byte(out.State.Status)})
		writeString(h, buf, out.State.SpentBy)
		binary.BigEndian.PutUint64(buf, uint64(len(out.State.ClaimedBy)))
		h.Write(buf)
		for _, c := range out.State.ClaimedBy {
			writeString(h, buf, c)
		}
	}
	for _, id := range sortedKeys(r.txs) {
		writeString(h, buf, id)
		h.Write([]byte{byte(r.txs[id].status)})
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeString(h hash.Hash, buf []byte, s string) {
	binary.BigEndian.PutUint64(buf, uint64(len(s)))
	h.Write(buf)
	h.Write([]byte(s))
}

// DigestHex renders a digest for logs and the CLI.
func DigestHex(d [32]byte) string {
	return hex.EncodeToString(d[:])
}
