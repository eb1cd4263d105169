package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/meshpay/meshledger/common"
	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/types"
)

// Limits to prevent DoS via oversized inputs
const (
	MaxInputs              = 256
	MaxOutputs             = 256
	maxSignatureBase58Len  = 128
	maxSignatureDecodedLen = 64
)

// Transaction is a signed transfer of value. It is immutable once signed:
// ID covers every field except Signatures.
type Transaction struct {
	ID           string           `json:"id" msgpack:"id"`
	Inputs       []string         `json:"inputs" msgpack:"inputs"`
	Outputs      []types.TxOutput `json:"outputs" msgpack:"outputs"`
	Timestamp    uint64           `json:"timestamp" msgpack:"timestamp"`
	Nonce        uint64           `json:"nonce" msgpack:"nonce"`
	LogicalClock uint64           `json:"logical_clock" msgpack:"logical_clock"`
	// Signatures holds one base58 signature over ID per distinct input
	// owner, ordered by the owner's first appearance in Inputs.
	Signatures []string `json:"signatures" msgpack:"signatures"`
}

// Serialize returns the canonical content the id is computed from.
func (tx *Transaction) Serialize() []byte {
	outs := make([]string, len(tx.Outputs))
	for i, o := range tx.Outputs {
		outs[i] = o.Owner + ":" + strconv.FormatUint(o.Amount, 10)
	}
	metadata := fmt.Sprintf(
		"%s|%s|%d|%d|%d",
		strings.Join(tx.Inputs, ","), strings.Join(outs, ","), tx.Timestamp, tx.Nonce, tx.LogicalClock,
	)
	return []byte(metadata)
}

// ComputeID hashes the canonical content.
func (tx *Transaction) ComputeID() string {
	sum256 := sha256.Sum256(tx.Serialize())
	return hex.EncodeToString(sum256[:])
}

// Seal sets ID from the current content. Call it before signing.
func (tx *Transaction) Seal() {
	tx.ID = tx.ComputeID()
}

// SigningBytes is the message every input owner signs.
func (tx *Transaction) SigningBytes() []byte {
	return []byte(tx.ID)
}

// AddSignature appends a raw signature in base58 form.
func (tx *Transaction) AddSignature(sig []byte) {
	tx.Signatures = append(tx.Signatures, common.EncodeBytesToBase58(sig))
}

// DecodeSignature decodes the i-th signature, enforcing size limits.
func (tx *Transaction) DecodeSignature(i int) ([]byte, error) {
	if i < 0 || i >= len(tx.Signatures) {
		return nil, fmt.Errorf("no signature at position %d", i)
	}
	s := tx.Signatures[i]
	if s == "" {
		return nil, fmt.Errorf("empty signature at position %d", i)
	}
	if len(s) > maxSignatureBase58Len {
		return nil, fmt.Errorf("signature at position %d too large", i)
	}
	sig, err := common.DecodeBase58ToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(sig) > maxSignatureDecodedLen {
		return nil, fmt.Errorf("decoded signature at position %d too large", i)
	}
	return sig, nil
}

// OutputSum adds the output amounts; overflow is reported instead of
// wrapping.
func (tx *Transaction) OutputSum() (*uint256.Int, bool) {
	sum := uint256.NewInt(0)
	for _, o := range tx.Outputs {
		if _, overflow := sum.AddOverflow(sum, uint256.NewInt(o.Amount)); overflow {
			return nil, true
		}
	}
	return sum, false
}

// CreatedOutputs materializes the outputs this transaction creates.
func (tx *Transaction) CreatedOutputs() []*types.Output {
	outs := make([]*types.Output, len(tx.Outputs))
	for i, o := range tx.Outputs {
		outs[i] = types.NewOutput(tx.ID, uint32(i), o)
	}
	return outs
}

// OutputIDs lists the ids of the outputs this transaction creates.
func (tx *Transaction) OutputIDs() []string {
	ids := make([]string, len(tx.Outputs))
	for i := range tx.Outputs {
		ids[i] = types.OutputID(tx.ID, uint32(i))
	}
	return ids
}

func (tx *Transaction) Clone() *Transaction {
	cp := *tx
	cp.Inputs = append([]string(nil), tx.Inputs...)
	cp.Outputs = append([]types.TxOutput(nil), tx.Outputs...)
	cp.Signatures = append([]string(nil), tx.Signatures...)
	return &cp
}

func (tx *Transaction) Bytes() []byte {
	b, _ := jsonx.Marshal(tx)
	return b
}

// ShortID is used in log lines.
func (tx *Transaction) ShortID() string {
	return ShortID(tx.ID)
}

func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// Parse decodes a JSON encoded transaction.
func Parse(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := jsonx.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return &tx, nil
}
