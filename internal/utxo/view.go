package utxo

import (
	"sort"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Change is one entry of a view's delta. A nil UTXO means the outpoint
// was deleted.
type Change struct {
	Outpoint types.Outpoint
	UTXO     *UTXO
}

// View is an in-memory overlay on top of another Set. Reads fall through
// to the base unless the view has changed the outpoint; writes never
// touch the base.
//
// A View is not safe for concurrent use.
type View struct {
	base    Set
	changes map[types.Outpoint]*UTXO
}

// NewView creates an empty overlay over base.
func NewView(base Set) *View {
	return &View{base: base, changes: make(map[types.Outpoint]*UTXO)}
}

// Get returns the UTXO as seen through the view.
func (v *View) Get(op types.Outpoint) (*UTXO, error) {
	if u, ok := v.changes[op]; ok {
		if u == nil {
			return nil, ErrNotFound
		}
		return u, nil
	}
	return v.base.Get(op)
}

// Has reports whether op is unspent in the view.
func (v *View) Has(op types.Outpoint) (bool, error) {
	if u, ok := v.changes[op]; ok {
		return u != nil, nil
	}
	return v.base.Has(op)
}

// Put records u as unspent.
func (v *View) Put(u *UTXO) error {
	cp := *u
	v.changes[u.Outpoint] = &cp
	return nil
}

// Delete records op as spent.
func (v *View) Delete(op types.Outpoint) error {
	v.changes[op] = nil
	return nil
}

// ForEach visits every UTXO visible through the view: unchanged base
// entries first, then the view's own puts in outpoint order.
func (v *View) ForEach(fn func(*UTXO) error) error {
	err := v.base.ForEach(func(u *UTXO) error {
		if _, changed := v.changes[u.Outpoint]; changed {
			return nil
		}
		return fn(u)
	})
	if err != nil {
		return err
	}
	for _, ch := range v.Changes() {
		if ch.UTXO == nil {
			continue
		}
		if err := fn(ch.UTXO); err != nil {
			return err
		}
	}
	return nil
}

// LookupUTXO lets a view back transaction input checks.
func (v *View) LookupUTXO(op types.Outpoint) (uint64, types.Address, bool) {
	u, err := v.Get(op)
	if err != nil {
		return 0, types.Address{}, false
	}
	return u.Value, u.Address, true
}

// Changes returns the delta sorted by outpoint.
func (v *View) Changes() []Change {
	out := make([]Change, 0, len(v.changes))
	for op, u := range v.changes {
		out = append(out, Change{Outpoint: op, UTXO: u})
	}
	sort.Slice(out, func(i, j int) bool {
		return outpointLess(out[i].Outpoint, out[j].Outpoint)
	})
	return out
}

// Len returns the number of changed outpoints.
func (v *View) Len() int {
	return len(v.changes)
}

func outpointLess(a, b types.Outpoint) bool {
	if c := a.TxID.Compare(b.TxID); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}
