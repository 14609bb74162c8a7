package chain

import (
	"errors"

	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// route is the path between the current tip and some other block.
// Both slices are in discovery order, newest first, and exclude the
// common ancestor.
type route struct {
	oldPath []*BlockMeta // tip back to the ancestor
	newPath []*BlockMeta // target back to the ancestor
}

// findRoute walks from the tip and from target toward genesis in lock
// step: the pointer at the greater height moves to its parent, and at
// equal height both move, until they meet.
func (c *Chain) findRoute(target *BlockMeta, pending map[types.Hash]*BlockMeta) (*route, error) {
	lookup := func(h types.Hash) (*BlockMeta, error) {
		if m, ok := c.metas[h]; ok {
			return m, nil
		}
		if m, ok := pending[h]; ok {
			return m, nil
		}
		return nil, internalErr(nil, "missing metadata for %s", h.Short())
	}

	a, err := lookup(c.state.TipHash)
	if err != nil {
		return nil, err
	}
	b := target
	r := &route{}

	for a.Hash != b.Hash {
		stepA := a.Height >= b.Height
		stepB := b.Height >= a.Height
		if stepA {
			if a.Height == 0 {
				return nil, internalErr(nil, "no common ancestor for %s", target.Hash.Short())
			}
			r.oldPath = append(r.oldPath, a)
			if a, err = lookup(a.Parent); err != nil {
				return nil, err
			}
		}
		if stepB {
			if b.Height == 0 {
				return nil, internalErr(nil, "no common ancestor for %s", target.Hash.Short())
			}
			r.newPath = append(r.newPath, b)
			if b, err = lookup(b.Parent); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// stage rewinds view from the tip to the common ancestor, newest first,
// then replays the new path oldest first. view must start at the tip.
func (r *route) stage(view *utxo.View) error {
	for _, m := range r.oldPath {
		if m.Undo == nil {
			return internalErr(nil, "missing undo data for %s", m.Hash.Short())
		}
		if err := m.Undo.Rollback(view); err != nil {
			return wrapStage(err, "rollback %s", m.Hash)
		}
	}
	for i := len(r.newPath) - 1; i >= 0; i-- {
		m := r.newPath[i]
		if m.Undo == nil {
			return internalErr(nil, "missing undo data for %s", m.Hash.Short())
		}
		if err := m.Undo.Apply(view); err != nil {
			return wrapStage(err, "apply %s", m.Hash)
		}
	}
	return nil
}

// viewAt returns an overlay of the UTXO set as it stood right after
// parent, together with the route that leads there from the tip. The live
// set is not touched.
func (c *Chain) viewAt(parent *BlockMeta) (*utxo.View, *route, error) {
	view := utxo.NewView(c.utxos)
	if parent.Hash == c.state.TipHash {
		return view, &route{}, nil
	}
	r, err := c.findRoute(parent, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := r.stage(view); err != nil {
		return nil, nil, err
	}
	return view, r, nil
}

func wrapStage(err error, format string, h types.Hash) error {
	if errors.Is(err, utxo.ErrUndoMismatch) {
		return internalErr(err, format, h.Short())
	}
	return storageErr("read utxo", err)
}
