package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EventID uniquely identifies an emitted event: the contract that emitted it
// plus its ordered position in the log (block number, index within block).
type EventID struct {
	Contract common.Address
	Block    uint64
	Index    uint
}

func (id EventID) String() string {
	return fmt.Sprintf("%s@%d/%d", id.Contract.Hex(), id.Block, id.Index)
}

// Before reports whether id was produced strictly before other in log order.
// Only meaningful for events from the same contract.
func (id EventID) Before(other EventID) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Index < other.Index
}

// Event is a decoded, immutable ledger event.
type Event struct {
	ID     EventID
	Kind   string // event name, e.g. "LimitSellOrderCreated"
	TxHash common.Hash
	Args   map[string]interface{}
}
