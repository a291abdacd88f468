package ledger

import "github.com/mselser95/settlement-engine/pkg/types"

type journal struct {
	entries []func()
}

func (j *journal) append(undo func()) {
	j.entries = append(j.entries, undo)
}

func (j *journal) revert() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		j.entries[i]()
	}
	j.entries = nil
}

// Set writes v to *p and journals the previous value.
func Set[T any](tx *Tx, p *T, v T) {
	old := *p
	tx.journal.append(func() { *p = old })
	*p = v
}

// SetKey writes m[k] = v and journals the previous entry (or its absence).
func SetKey[K comparable, V any](tx *Tx, m map[K]V, k K, v V) {
	old, existed := m[k]
	tx.journal.append(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// Append appends v to *s and journals the truncation.
func Append[T any](tx *Tx, s *[]T, v T) {
	n := len(*s)
	tx.journal.append(func() { *s = (*s)[:n] })
	*s = append(*s, v)
}

// Guard is a journalled reentrancy lock around functions that mutate
// accounting state and then transfer tokens.
type Guard struct {
	entered bool
}

// Enter locks the guard for the rest of the call. The returned function
// releases it; on revert the journal releases it as well.
func (g *Guard) Enter(tx *Tx) (func(), error) {
	if g.entered {
		return nil, types.ErrReentrant
	}
	Set(tx, &g.entered, true)
	return func() { Set(tx, &g.entered, false) }, nil
}
