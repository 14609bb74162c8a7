package p2p

import (
	"encoding/json"
	"errors"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
)

var errNotStarted = errors.New("p2p node not started")

// BroadcastTx publishes a transaction to the gossip network.
func (n *Node) BroadcastTx(t *tx.Transaction) error {
	return n.publish(n.topicTx, "tx", t)
}

// BroadcastBlock publishes a block to the gossip network.
func (n *Node) BroadcastBlock(b *block.Block) error {
	return n.publish(n.topicBlock, "block", b)
}

func (n *Node) publish(topic *pubsub.Topic, kind string, v any) error {
	if topic == nil {
		return errNotStarted
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	return topic.Publish(n.ctx, data)
}
