// Package consensus implements block sealing and header checks.
package consensus

import (
	"context"

	"github.com/Klingon-tech/eggcore/pkg/block"
)

// Engine is the interface for consensus implementations.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header) error
	Seal(ctx context.Context, header *block.Header) error
}
