package ledger

import (
	"container/heap"
	"fmt"
	"sort"

	lerrors "github.com/meshpay/meshledger/errors"
	"github.com/meshpay/meshledger/transaction"
	"github.com/meshpay/meshledger/types"
)

// StatusChange records a transaction moving between statuses during a
// resolve pass.
type StatusChange struct {
	TxID   string             `json:"tx_id"`
	From   TxStatus           `json:"from"`
	To     TxStatus           `json:"to"`
	Reason lerrors.RejectCode `json:"reason,omitempty"`
	Detail string             `json:"detail,omitempty"`
}

// Less is the total order used to settle conflicts: the lower logical
// clock wins, ties go to the smaller id.
func Less(a, b *transaction.Transaction) bool {
	if a.LogicalClock != b.LogicalClock {
		return a.LogicalClock < b.LogicalClock
	}
	return a.ID < b.ID
}

// Winner returns the transaction that wins a conflict among claimants.
func Winner(claimants []*transaction.Transaction) *transaction.Transaction {
	var best *transaction.Transaction
	for _, tx := range claimants {
		if best == nil || Less(tx, best) {
			best = tx
		}
	}
	return best
}

// Resolver recomputes transaction statuses and output states from the set
// of known transactions. The result depends only on that set, never on the
// order transactions arrived in.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

type readyQueue struct {
	ids []string
	r   *Registry
}

func (q *readyQueue) Len() int { return len(q.ids) }
func (q *readyQueue) Less(i, j int) bool {
	return Less(q.r.txs[q.ids[i]].tx, q.r.txs[q.ids[j]].tx)
}
func (q *readyQueue) Swap(i, j int) { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *readyQueue) Push(x any)   { q.ids = append(q.ids, x.(string)) }
func (q *readyQueue) Pop() any {
	n := len(q.ids)
	id := q.ids[n-1]
	q.ids = q.ids[:n-1]
	return id
}

type resolution struct {
	r       *Registry
	status  map[string]TxStatus
	reason  map[string]string
	spentBy map[string]string
	pending map[string]int
	queue   *readyQueue
}

// Resolve settles every transaction in r and writes the resulting output
// states. It returns the status changes and the number of outputs that
// became Spent in this pass. Running it twice in a row is a no-op.
func (res *Resolver) Resolve(r *Registry) ([]StatusChange, int) {
	s := &resolution{
		r:       r,
		status:  make(map[string]TxStatus, len(r.txs)),
		reason:  make(map[string]string),
		spentBy: make(map[string]string),
		pending: make(map[string]int, len(r.txs)),
		queue:   &readyQueue{r: r},
	}

	ids := make([]string, 0, len(r.txs))
	for id := range r.txs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := 0
		for _, p := range r.txs[id].parents {
			if _, ok := r.txs[p]; ok {
				n++
			}
		}
		s.pending[id] = n
		if n == 0 {
			s.queue.ids = append(s.queue.ids, id)
		}
	}
	heap.Init(s.queue)

	for s.queue.Len() > 0 {
		s.step()
	}

	for _, id := range ids {
		if s.status[id] == TxUnknown {
			s.reject(id, "unresolved dependency")
		}
	}

	changes := s.commitStatuses(ids)
	resolved := s.commitOutputs()
	return changes, resolved
}

// step decides one transaction: the best ready one whose inputs have no
// better undecided competitor, or the best ready one when every ready
// transaction is waiting on such a competitor.
func (s *resolution) step() {
	var blocked []string
	var chosen string
	for s.queue.Len() > 0 {
		id := heap.Pop(s.queue).(string)
		if s.status[id] != TxUnknown {
			continue
		}
		if in, by, spent := s.spentInput(id); spent {
			s.reject(id, fmt.Sprintf(lerrors.ErrMsgInputSpent, in, by))
			continue
		}
		if s.free(id) {
			chosen = id
			break
		}
		blocked = append(blocked, id)
	}
	if chosen == "" && len(blocked) > 0 {
		chosen, blocked = blocked[0], blocked[1:]
	}
	for _, id := range blocked {
		heap.Push(s.queue, id)
	}
	if chosen != "" {
		s.admit(chosen)
	}
}

func (s *resolution) spentInput(id string) (string, string, bool) {
	for _, in := range s.r.txs[id].tx.Inputs {
		if by, ok := s.spentBy[in]; ok {
			return in, by, true
		}
	}
	return "", "", false
}

func (s *resolution) free(id string) bool {
	tx := s.r.txs[id].tx
	for _, in := range tx.Inputs {
		for _, k := range s.r.claims[in] {
			if k == id || s.status[k] != TxUnknown {
				continue
			}
			if Less(s.r.txs[k].tx, tx) {
				return false
			}
		}
	}
	return true
}

func (s *resolution) admit(id string) {
	s.status[id] = TxAccepted
	for _, in := range s.r.txs[id].tx.Inputs {
		s.spentBy[in] = id
		for _, k := range s.r.claims[in] {
			if k != id && s.status[k] == TxUnknown {
				s.reject(k, fmt.Sprintf(lerrors.ErrMsgLostConflict, in))
			}
		}
	}
	for _, child := range s.r.children[id] {
		if s.status[child] != TxUnknown {
			continue
		}
		s.pending[child]--
		if s.pending[child] == 0 {
			heap.Push(s.queue, child)
		}
	}
}

// reject marks id and everything spending its outputs as rejected. The
// walk uses an explicit stack over the children index.
func (s *resolution) reject(id, detail string) {
	stack := []string{id}
	s.status[id] = TxRejected
	s.reason[id] = detail
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range s.r.children[cur] {
			if s.status[child] != TxUnknown {
				continue
			}
			s.status[child] = TxRejected
			s.reason[child] = fmt.Sprintf(lerrors.ErrMsgCausalDependency, cur)
			stack = append(stack, child)
		}
	}
}

func (s *resolution) commitStatuses(ids []string) []StatusChange {
	var changes []StatusChange
	for _, id := range ids {
		rec := s.r.txs[id]
		next := s.status[id]
		detail := s.reason[id]
		if rec.status == next && rec.detail == detail {
			continue
		}
		change := StatusChange{TxID: id, From: rec.status, To: next}
		rec.status = next
		rec.detail = detail
		rec.reason = ""
		if next == TxRejected {
			rec.reason = lerrors.CodeDoubleSpend
			change.Reason = rec.reason
			change.Detail = detail
		}
		s.r.epoch++
		rec.epoch = s.r.epoch
		if change.From != change.To {
			changes = append(changes, change)
		}
	}
	return changes
}

func (s *resolution) commitOutputs() int {
	ids := make([]string, 0, len(s.r.outputs))
	for id := range s.r.outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resolved := 0
	for _, id := range ids {
		out := s.r.outputs[id]
		next := s.stateOf(out)
		if out.State.Equal(next) {
			continue
		}
		if next.Status == types.StatusSpent {
			resolved++
		}
		updated := out.Clone()
		updated.State = next
		s.r.Upsert(updated)
	}
	return resolved
}

func (s *resolution) stateOf(out *types.Output) types.OutputState {
	if out.CreatedBy != types.GenesisTxID && s.status[out.CreatedBy] != TxAccepted {
		return types.Invalidated()
	}
	by, ok := s.spentBy[out.ID]
	if !ok {
		return types.Unspent()
	}
	if len(s.r.claims[out.ID]) > 1 {
		return types.Spent(by)
	}
	return types.Pending(by)
}
