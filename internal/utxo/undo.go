package utxo

import (
	"errors"
	"fmt"
)

// ErrUndoMismatch means an undo log does not fit the set it is applied
// to: a spent record is already gone, or a created record is missing.
var ErrUndoMismatch = errors.New("undo log does not match utxo set")

// Undo holds everything needed to reverse a block: the full records it
// spent and every output it created, coinbase included.
type Undo struct {
	Spent   []*UTXO `json:"spent"`
	Created []*UTXO `json:"created"`
}

// Apply connects the block: spent records are removed, created ones added.
func (u *Undo) Apply(s Set) error {
	for _, rec := range u.Spent {
		ok, err := s.Has(rec.Outpoint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: spent %s not present", ErrUndoMismatch, rec.Outpoint)
		}
		if err := s.Delete(rec.Outpoint); err != nil {
			return err
		}
	}
	for _, rec := range u.Created {
		if err := s.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

// Rollback disconnects the block: created records are removed newest
// first, then the spent records are restored.
func (u *Undo) Rollback(s Set) error {
	for i := len(u.Created) - 1; i >= 0; i-- {
		rec := u.Created[i]
		ok, err := s.Has(rec.Outpoint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: created %s not present", ErrUndoMismatch, rec.Outpoint)
		}
		if err := s.Delete(rec.Outpoint); err != nil {
			return err
		}
	}
	for i := len(u.Spent) - 1; i >= 0; i-- {
		if err := s.Put(u.Spent[i]); err != nil {
			return err
		}
	}
	return nil
}
