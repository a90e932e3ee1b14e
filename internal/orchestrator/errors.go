package orchestrator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionRejectedError reports a transaction the ledger refused or
// reverted. Terminal: resubmission needs a fresh decision by the caller.
type SubmissionRejectedError struct {
	TxHash common.Hash
	Method string
	Reason string // empty when the ledger gave none
}

func (e *SubmissionRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transaction %s (%s) rejected: %s", e.TxHash.Hex(), e.Method, e.Reason)
	}
	return fmt.Sprintf("transaction %s (%s) rejected by the ledger", e.TxHash.Hex(), e.Method)
}
