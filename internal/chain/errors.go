package chain

import (
	"errors"
	"fmt"
)

// Validation errors. A block rejected with one of these left no trace.
var (
	ErrInvalidPoW        = errors.New("invalid proof of work")
	ErrUnknownParent     = errors.New("unknown parent block")
	ErrBadCoinbase       = errors.New("missing or duplicate coinbase")
	ErrMissingInput      = errors.New("input missing or already spent")
	ErrInsufficientInput = errors.New("inputs do not cover outputs")
	ErrDuplicateBlock    = errors.New("block already known")
	ErrBadSignature      = errors.New("invalid input signature")
	ErrCoinbaseValue     = errors.New("coinbase value is not subsidy plus fees")
	ErrBadBlock          = errors.New("malformed block")
	ErrInvalidGenesis    = errors.New("invalid genesis block")
)

// ErrHalted is returned once a storage failure has stopped block acceptance.
var ErrHalted = errors.New("chain halted after storage failure")

var validationErrors = []error{
	ErrInvalidPoW,
	ErrUnknownParent,
	ErrBadCoinbase,
	ErrMissingInput,
	ErrInsufficientInput,
	ErrDuplicateBlock,
	ErrBadSignature,
	ErrCoinbaseValue,
	ErrBadBlock,
	ErrInvalidGenesis,
}

// IsValidation reports whether err rejects a block for consensus reasons
// rather than because of a local failure.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// StorageError wraps a failure of the storage layer. It is fatal: once a
// write fails the chain stops accepting blocks.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// InternalError reports a broken invariant, such as a known block whose
// metadata is missing. It points at a bug or a corrupted database.
type InternalError struct {
	Msg string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Msg, e.Err)
	}
	return "internal error: " + e.Msg
}

func (e *InternalError) Unwrap() error { return e.Err }

func internalErr(err error, format string, args ...interface{}) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...), Err: err}
}
