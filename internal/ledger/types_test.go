package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestEventIDBefore(t *testing.T) {
	base := EventID{Block: 5, Index: 2}

	assert.True(t, EventID{Block: 4, Index: 9}.Before(base), "lower block wins regardless of index")
	assert.True(t, EventID{Block: 5, Index: 1}.Before(base))
	assert.False(t, base.Before(base))
	assert.False(t, EventID{Block: 5, Index: 3}.Before(base))
	assert.False(t, EventID{Block: 6, Index: 0}.Before(base))
}

func TestEventIDString(t *testing.T) {
	id := EventID{
		Contract: common.HexToAddress("0x0000000000000000000000000000000000000e01"),
		Block:    7,
		Index:    3,
	}
	assert.Contains(t, id.String(), "@7/3")
}

func TestSubscriptionFeedStopsAfterClose(t *testing.T) {
	s := NewSubscription()

	assert.True(t, s.Feed(ethtypes.Log{BlockNumber: 1}))
	s.Close()
	s.Close() // idempotent

	// The consumer drains what was already delivered, then nothing more
	// is accepted.
	<-s.Logs()
	assert.False(t, s.Feed(ethtypes.Log{BlockNumber: 2}))
}

func TestSubscriptionErrorChannelNeverBlocks(t *testing.T) {
	s := NewSubscription()

	// Far beyond the error buffer; must not block delivery.
	for i := 0; i < 50; i++ {
		s.Fail(assert.AnError)
	}

	select {
	case err := <-s.Errs():
		assert.Error(t, err)
	default:
		t.Fatal("expected at least one buffered fault")
	}
}
